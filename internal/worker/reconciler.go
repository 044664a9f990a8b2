// Package worker keeps the read side in step with the event bus: cached
// booking snapshots, last known courier positions, and customer notices.
package worker

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/kafka"
	"github.com/Domenick1991/courierbooking/internal/realtime"
)

type Cache interface {
	SetBooking(ctx context.Context, b *domain.Booking) error
	SetPilotPosition(ctx context.Context, u domain.CoordinateUpdate) error
}

type Notifier interface {
	Send(ctx context.Context, ev realtime.Event) error
}

type Reconciler struct {
	cache              Cache
	notifier           Notifier
	notificationsTopic string
	logger             *slog.Logger
}

func NewReconciler(cache Cache, notifier Notifier, notificationsTopic string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{cache: cache, notifier: notifier, notificationsTopic: notificationsTopic, logger: logger}
}

// Handle applies one bus message. Bad payloads and cache failures are logged
// and skipped; the consumer only stops when ctx ends.
func (r *Reconciler) Handle(ctx context.Context, msg kafka.Message) error {
	ev, err := realtime.DecodeEvent(msg.Value)
	if err != nil {
		r.logger.Warn("skipping event", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		return nil
	}

	if msg.Topic == r.notificationsTopic {
		if r.notifier != nil {
			if err := r.notifier.Send(ctx, ev); err != nil {
				r.logger.Error("send notification", "booking", ev.BookingID(), "err", err)
			}
		}
		return nil
	}

	switch ev.Type {
	case realtime.EventBookingUpdated:
		// SetBooking keeps whichever snapshot was written last by the store.
		if err := r.cache.SetBooking(ctx, ev.Booking); err != nil {
			r.logger.Error("cache booking", "booking", ev.Booking.ID, "err", err)
		}
	case realtime.EventPilotLocation:
		if err := r.cache.SetPilotPosition(ctx, *ev.Coordinate); err != nil {
			r.logger.Error("cache position", "booking", ev.Coordinate.BookingID, "err", err)
		}
	}
	return nil
}
