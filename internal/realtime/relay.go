package realtime

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/courierbooking/internal/kafka"
)

// Relay forwards bus messages to the hub. Undecodable messages are logged
// and skipped so one bad producer cannot stall the stream.
type Relay struct {
	hub    *Hub
	logger *slog.Logger
}

func NewRelay(hub *Hub, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{hub: hub, logger: logger}
}

func (r *Relay) Handle(ctx context.Context, msg kafka.Message) error {
	ev, err := DecodeEvent(msg.Value)
	if err != nil {
		r.logger.Warn("skipping event", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		return nil
	}
	return r.hub.Publish(ctx, ev)
}
