package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Domenick1991/carrental/config"
	"github.com/Domenick1991/carrental/internal/bootstrap"
	"github.com/Domenick1991/carrental/internal/cache"
	"github.com/Domenick1991/carrental/internal/clients"
	"github.com/Domenick1991/carrental/internal/gateway"
	"github.com/Domenick1991/carrental/internal/kafka"
	"github.com/Domenick1991/carrental/internal/logger"
	"github.com/Domenick1991/carrental/internal/rabbitmq"
	"github.com/Domenick1991/carrental/internal/repository"
	"github.com/Domenick1991/carrental/internal/service/payments"
	"github.com/Domenick1991/carrental/internal/service/rental"
)

type eventPublisher interface {
	rental.Producer
	Close() error
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

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Services.ClientCacheTTL())
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unreachable, vehicle locks will fail open", "error", err)
	}

	producer, err := newPublisher(ctx, cfg)
	if err != nil {
		log.Fatalf("connect event broker: %v", err)
	}
	defer producer.Close()

	paymentService := payments.NewPaymentService(
		repository.NewPaymentRepository(pool),
		gateway.NewSimulated(gateway.Options{
			SuccessRate: cfg.Payment.SuccessRate,
			Latency:     cfg.Payment.Latency(),
			Outage:      cfg.Payment.Outage,
		}),
		cfg.Payment.Timeout(),
	)

	eventsTopic, notificationsTopic := cfg.Topics()

	var directory rental.ClientDirectory
	if cfg.Services.ClientURL != "" {
		directory = clients.NewClientServiceClient(cfg.Services.ClientURL, cfg.Services.Timeout(), nil)
	}

	rentalService := rental.NewRentalService(
		repository.NewRentalRepository(pool),
		paymentService,
		clients.NewVehicleClient(cfg.Services.VehicleURL, cfg.Services.Timeout(), nil),
		directory,
		redisCache,
		producer,
		eventsTopic,
		rental.WithNotificationsTopic(notificationsTopic),
		rental.WithLockTTL(cfg.Rental.LockTTL()),
		rental.WithPendingHold(cfg.Rental.PendingHold()),
	)

	if err := bootstrap.Run(ctx, cfg, rentalService, paymentService); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newPublisher(ctx context.Context, cfg *config.Config) (eventPublisher, error) {
	if cfg.Events.Broker == "rabbitmq" {
		return rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.RabbitMQ.NotificationsQueue)
	}
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	if err := producer.CheckConnection(ctx); err != nil {
		logger.Warn("kafka unreachable, rental events are dropped until it recovers", "error", err)
	}
	return producer, nil
}
