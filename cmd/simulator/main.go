// simulator replays a courier driving a booking's route, publishing one
// position per step to the location topic. It exists for live-tracking
// demos; positions are a straight line between pickup and drop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Domenick1991/courierbooking/config"
	"github.com/Domenick1991/courierbooking/internal/cache"
	"github.com/Domenick1991/courierbooking/internal/db"
	"github.com/Domenick1991/courierbooking/internal/kafka"
	"github.com/Domenick1991/courierbooking/internal/realtime"
	"github.com/Domenick1991/courierbooking/internal/repository"
	"github.com/Domenick1991/courierbooking/internal/tracking"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		bookingID  string
		from, to   []float64
		window     time.Duration
		step       time.Duration
		cachePos   bool
	)

	flagSet := pflag.NewFlagSet("simulator", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "path to the YAML config")
	flagSet.StringVar(&bookingID, "booking", "", "booking id to drive (required)")
	flagSet.Float64SliceVar(&from, "from", nil, "start as lat,lng (default: the booking's pickup)")
	flagSet.Float64SliceVar(&to, "to", nil, "end as lat,lng (default: the booking's drop)")
	flagSet.DurationVar(&window, "window", 2*time.Minute, "time to drive from start to end")
	flagSet.DurationVar(&step, "step", 2*time.Second, "interval between positions")
	flagSet.BoolVar(&cachePos, "cache", false, "also write each position straight to the redis cache")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if bookingID == "" {
		return fmt.Errorf("--booking is required")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	route, err := resolveRoute(ctx, cfg, bookingID, from, to)
	if err != nil {
		return err
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()
	if err := producer.CheckTopics(ctx, cfg.Kafka.LocationTopic); err != nil {
		return err
	}

	var positions *cache.RedisCache
	if cachePos {
		positions = cache.NewRedisCache(cfg.Redis, cfg.Pilots.CacheTTL())
		defer positions.Close()
	}

	logger.Info("driving", "booking", bookingID, "from", route.From, "to", route.To, "window", window)
	for update := range route.Positions(time.Now(), window, step) {
		if wait := time.Until(update.Timestamp); wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
		if err := producer.PublishWithRetry(ctx, cfg.Kafka.LocationTopic, bookingID, realtime.PilotLocation(update), 3); err != nil {
			return fmt.Errorf("publish position: %w", err)
		}
		if positions != nil {
			if err := positions.SetPilotPosition(ctx, update); err != nil {
				logger.Warn("cache position", "err", err)
			}
		}
		logger.Debug("position", "lat", update.Lat, "lng", update.Lng)
	}
	logger.Info("arrived", "booking", bookingID)
	return nil
}

func resolveRoute(ctx context.Context, cfg *config.Config, bookingID string, from, to []float64) (tracking.Route, error) {
	if len(from) == 2 && len(to) == 2 {
		return tracking.Route{
			BookingID: bookingID,
			From:      tracking.Point{Lat: from[0], Lng: from[1]},
			To:        tracking.Point{Lat: to[0], Lng: to[1]},
		}, nil
	}
	if len(from) != 0 || len(to) != 0 {
		return tracking.Route{}, fmt.Errorf("--from and --to take lat,lng and must be given together")
	}

	pool, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return tracking.Route{}, fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	b, err := repository.NewBookingRepository(pool).Get(ctx, bookingID)
	if err != nil {
		return tracking.Route{}, err
	}
	route, ok := tracking.RouteFor(b)
	if !ok {
		return tracking.Route{}, fmt.Errorf("booking %s has no coordinates; pass --from and --to", bookingID)
	}
	return route, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
