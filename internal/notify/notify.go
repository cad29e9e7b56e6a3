package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/logger"
)

type Notification struct {
	ClientID int64
	Subject  string
	Body     string
}

// Sender delivers client notifications for rental events. Delivery is a structured log
// line; there is no mail transport behind it.
type Sender struct {
	log *slog.Logger
}

func NewSender() *Sender {
	return &Sender{log: logger.WithService("notify")}
}

// Send reports whether the event produced a notification.
func (s *Sender) Send(ctx context.Context, event domain.RentalEvent) (bool, error) {
	n, ok := Render(event)
	if !ok {
		return false, nil
	}
	s.log.InfoContext(ctx, "notification sent",
		"client_id", n.ClientID, "rental_id", event.RentalID, "subject", n.Subject, "body", n.Body)
	return true, nil
}

// Render builds the client-facing message from fixed wording; event reasons carry
// internal error text and stay in the logs. Internal events such as availability sync
// failures have none.
func Render(e domain.RentalEvent) (Notification, bool) {
	n := Notification{ClientID: e.ClientID}
	switch e.Type {
	case domain.EventRentalCreated:
		n.Subject = fmt.Sprintf("Rental #%d received", e.RentalID)
		n.Body = fmt.Sprintf("Your rental of vehicle %d is awaiting payment of %s.", e.VehicleID, e.Amount.StringFixed(2))
	case domain.EventRentalConfirmed:
		n.Subject = fmt.Sprintf("Rental #%d confirmed", e.RentalID)
		n.Body = fmt.Sprintf("Payment of %s received. Vehicle %d is reserved for you.", e.Amount.StringFixed(2), e.VehicleID)
	case domain.EventRentalPaymentFailed:
		n.Subject = fmt.Sprintf("Payment for rental #%d failed", e.RentalID)
		n.Body = fmt.Sprintf("We could not collect %s. Your reservation is kept pending, you can retry the payment.", e.Amount.StringFixed(2))
	case domain.EventRentalCancelled:
		n.Subject = fmt.Sprintf("Rental #%d cancelled", e.RentalID)
		n.Body = "Your rental has been cancelled."
		if e.Stage == domain.StageRefund {
			n.Body += " The refund could not be issued automatically, our support team will contact you."
		}
	case domain.EventRentalExpired:
		n.Subject = fmt.Sprintf("Rental #%d expired", e.RentalID)
		n.Body = "The reservation was released because no payment was received in time."
	case domain.EventRentalStatusChanged:
		n.Subject = fmt.Sprintf("Rental #%d is now %s", e.RentalID, e.Status)
		n.Body = fmt.Sprintf("Your rental of vehicle %d moved to %s.", e.VehicleID, e.Status)
	default:
		return Notification{}, false
	}
	return n, true
}
