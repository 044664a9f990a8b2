package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/courierbooking/config"
	"github.com/Domenick1991/courierbooking/internal/cache"
	"github.com/Domenick1991/courierbooking/internal/kafka"
	"github.com/Domenick1991/courierbooking/internal/notify"
	"github.com/Domenick1991/courierbooking/internal/worker"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Pilots.CacheTTL())
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		log.Fatalf("connect redis: %v", err)
	}

	topics := []string{cfg.Kafka.BookingEventsTopic, cfg.Kafka.LocationTopic}
	if cfg.Kafka.NotificationsTopic != "" {
		topics = append(topics, cfg.Kafka.NotificationsTopic)
	}
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topics)
	defer consumer.Close()

	reconciler := worker.NewReconciler(redisCache, notify.NewSender(logger), cfg.Kafka.NotificationsTopic, logger)

	logger.Info("worker started", "topics", topics)
	if err := consumer.Consume(ctx, reconciler.Handle); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("consumer stopped: %v", err)
	}
	logger.Info("worker stopped")
}
