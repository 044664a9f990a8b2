package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/courierbooking/config"
	"github.com/Domenick1991/courierbooking/internal/auth"
	"github.com/Domenick1991/courierbooking/internal/bootstrap"
	"github.com/Domenick1991/courierbooking/internal/cache"
	"github.com/Domenick1991/courierbooking/internal/db"
	"github.com/Domenick1991/courierbooking/internal/kafka"
	"github.com/Domenick1991/courierbooking/internal/realtime"
	"github.com/Domenick1991/courierbooking/internal/repository"
	"github.com/Domenick1991/courierbooking/internal/service/booking"
	"github.com/Domenick1991/courierbooking/internal/service/pilots"
	"github.com/google/uuid"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.MigrationsPath != "" {
		if err := db.Migrate(cfg.Database); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	pool, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Pilots.CacheTTL())
	defer redisCache.Close()
	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()

	bookingRepo := repository.NewBookingRepository(pool)
	pilotRepo := repository.NewPilotRepository(pool)
	pilotService := pilots.NewPilotService(pilotRepo, redisCache)
	bookingService := booking.NewBookingService(
		bookingRepo,
		pilotService,
		redisCache,
		producer,
		cfg.Kafka.BookingEventsTopic,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithRequestTimeout(cfg.Lifecycle.RequestTimeout()),
		booking.WithMinReasonLength(cfg.Lifecycle.MinCancelReasonLength),
		booking.WithLockTTL(cfg.Lifecycle.LockTTL()),
		booking.WithLogger(logger),
	)

	hub := realtime.NewHub(cfg.Realtime.PingInterval(), cfg.Realtime.SendBuffer, logger)
	go hub.Run(ctx)

	// Every instance needs every event for its own sockets, so each one
	// joins a group of its own and starts at the tail.
	relayGroup := fmt.Sprintf("%s-relay-%s", cfg.Kafka.GroupID, uuid.NewString())
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, relayGroup,
		[]string{cfg.Kafka.BookingEventsTopic, cfg.Kafka.LocationTopic}, kafka.FromLatest())
	defer consumer.Close()

	relay := realtime.NewRelay(hub, logger)
	go func() {
		if err := consumer.Consume(ctx, relay.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped", "err", err)
		}
	}()

	err = bootstrap.Run(ctx, cfg, bootstrap.Deps{
		Bookings: bookingService,
		Pilots:   pilotService,
		Hub:      hub,
		Auth:     auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL()),
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if err := redisCache.Ping(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
}
