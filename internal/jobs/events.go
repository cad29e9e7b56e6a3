package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/logger"
)

const (
	maxReconcileAttempts = 10
	republishRetries     = 3
)

type Notifier interface {
	Send(ctx context.Context, event domain.RentalEvent) (bool, error)
}

type AvailabilityReconciler interface {
	ReconcileAvailability(ctx context.Context, event domain.RentalEvent) error
}

type Republisher interface {
	PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error
}

// EventHandler consumes the two rental streams: the events topic drives availability
// reconciliation, the notifications topic drives client messages.
type EventHandler struct {
	notifier    Notifier
	reconciler  AvailabilityReconciler
	republisher Republisher
	eventsTopic string
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

func NewEventHandler(notifier Notifier, reconciler AvailabilityReconciler, republisher Republisher, eventsTopic string) *EventHandler {
	return &EventHandler{
		notifier:    notifier,
		reconciler:  reconciler,
		republisher: republisher,
		eventsTopic: eventsTopic,
		maxAttempts: maxReconcileAttempts,
		backoff:     reconcileBackoff,
	}
}

func reconcileBackoff(attempt int) time.Duration {
	return min(time.Duration(attempt)*5*time.Second, time.Minute)
}

// HandleEvent repairs vehicle availability after a failed write. A repair that fails
// again is put back on the events topic after a backoff, until maxAttempts.
func (h *EventHandler) HandleEvent(ctx context.Context, payload []byte) error {
	event, ok := decode(payload)
	if !ok || event.Type != domain.EventAvailabilitySyncFailed {
		return nil
	}

	err := h.reconciler.ReconcileAvailability(ctx, event)
	if err == nil {
		return nil
	}
	return h.requeue(ctx, event, err)
}

func (h *EventHandler) requeue(ctx context.Context, event domain.RentalEvent, cause error) error {
	event.Attempt++
	if event.Attempt >= h.maxAttempts {
		return fmt.Errorf("reconcile vehicle %d: giving up after %d attempts: %w", event.VehicleID, event.Attempt, cause)
	}
	logger.Warn("availability reconciliation failed, requeueing",
		"rental_id", event.RentalID, "vehicle_id", event.VehicleID, "attempt", event.Attempt, "error", cause)

	select {
	case <-ctx.Done():
	case <-time.After(h.backoff(event.Attempt)):
	}

	key := fmt.Sprintf("%d", event.RentalID)
	if err := h.republisher.PublishWithRetry(context.WithoutCancel(ctx), h.eventsTopic, key, event, republishRetries); err != nil {
		return fmt.Errorf("requeue reconciliation of vehicle %d: %w", event.VehicleID, errors.Join(cause, err))
	}
	return nil
}

// HandleNotification sends the client message for an event. Sending is best effort.
func (h *EventHandler) HandleNotification(ctx context.Context, payload []byte) error {
	event, ok := decode(payload)
	if !ok {
		return nil
	}
	if _, err := h.notifier.Send(ctx, event); err != nil {
		logger.Error("send rental notification", "rental_id", event.RentalID, "type", event.Type, "error", err)
	}
	return nil
}

// decode drops undecodable payloads: redelivering them would never succeed.
func decode(payload []byte) (domain.RentalEvent, bool) {
	var event domain.RentalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Warn("drop undecodable rental event", "error", err)
		return domain.RentalEvent{}, false
	}
	return event, true
}
