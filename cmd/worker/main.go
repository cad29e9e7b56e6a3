package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Domenick1991/carrental/config"
	"github.com/Domenick1991/carrental/internal/clients"
	"github.com/Domenick1991/carrental/internal/gateway"
	"github.com/Domenick1991/carrental/internal/jobs"
	"github.com/Domenick1991/carrental/internal/kafka"
	"github.com/Domenick1991/carrental/internal/logger"
	"github.com/Domenick1991/carrental/internal/notify"
	"github.com/Domenick1991/carrental/internal/rabbitmq"
	"github.com/Domenick1991/carrental/internal/repository"
	"github.com/Domenick1991/carrental/internal/service/payments"
	"github.com/Domenick1991/carrental/internal/service/rental"
)

type eventSource interface {
	Consume(ctx context.Context, handler func(context.Context, []byte) error) error
	Close() error
}

type eventPublisher interface {
	rental.Producer
	Close() error
}

type broker struct {
	publisher     eventPublisher
	events        eventSource
	notifications eventSource
}

func (b broker) Close() {
	for _, c := range []interface{ Close() error }{b.events, b.notifications, b.publisher} {
		if err := c.Close(); err != nil {
			logger.Warn("close broker connection", "error", err)
		}
	}
}

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	b, err := newBroker(cfg)
	if err != nil {
		log.Fatalf("connect event broker: %v", err)
	}
	defer b.Close()

	eventsTopic, notificationsTopic := cfg.Topics()

	// Expiry and reconciliation never reach the payment gateway.
	paymentService := payments.NewPaymentService(
		repository.NewPaymentRepository(pool),
		gateway.NewSimulated(gateway.Options{SuccessRate: cfg.Payment.SuccessRate}),
		cfg.Payment.Timeout(),
	)
	rentalService := rental.NewRentalService(
		repository.NewRentalRepository(pool),
		paymentService,
		clients.NewVehicleClient(cfg.Services.VehicleURL, cfg.Services.Timeout(), nil),
		nil,
		nil,
		b.publisher,
		eventsTopic,
		rental.WithNotificationsTopic(notificationsTopic),
		rental.WithPendingHold(cfg.Rental.PendingHold()),
	)

	scheduler, err := jobs.NewScheduler(rentalService, cfg.Worker.ExpirePendingSchedule)
	if err != nil {
		log.Fatalf("create scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	handler := jobs.NewEventHandler(notify.NewSender(), rentalService, b.publisher, eventsTopic)
	logger.Info("worker started", "broker", cfg.Events.Broker, "events", eventsTopic, "notifications", notificationsTopic)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.events.Consume(gctx, handler.HandleEvent) })
	g.Go(func() error { return b.notifications.Consume(gctx, handler.HandleNotification) })
	if err := g.Wait(); err != nil {
		logger.Error("consumer stopped", "error", err)
	}
	logger.Info("worker shutting down")
}

func newBroker(cfg *config.Config) (broker, error) {
	if cfg.Events.Broker == "rabbitmq" {
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.RabbitMQ.NotificationsQueue)
		if err != nil {
			return broker{}, err
		}
		events, err := rabbitmq.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			publisher.Close()
			return broker{}, err
		}
		notifications, err := rabbitmq.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.NotificationsQueue)
		if err != nil {
			events.Close()
			publisher.Close()
			return broker{}, err
		}
		return broker{publisher: publisher, events: events, notifications: notifications}, nil
	}

	return broker{
		publisher:     kafka.NewProducer(cfg.Kafka.Brokers),
		events:        kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.RentalEventsTopic),
		notifications: kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID+"-notifications", cfg.Kafka.NotificationsTopic),
	}, nil
}
