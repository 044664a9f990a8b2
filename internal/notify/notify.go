package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/realtime"
)

// Sender tells the customer about booking changes. Delivery is a log line
// until a messaging provider is wired in.
type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, ev realtime.Event) error {
	if ev.Booking == nil {
		return nil
	}
	s.logger.InfoContext(ctx, "notify customer",
		"booking", ev.Booking.ID,
		"action", ev.Action,
		"status", ev.Booking.Status,
		"message", Message(ev.Booking),
	)
	return nil
}

// Message is the customer-facing text for the booking's current status.
func Message(b *domain.Booking) string {
	label, err := domain.Label(b.Status)
	if err != nil {
		return fmt.Sprintf("Booking %s was updated.", b.ID)
	}
	switch b.Status {
	case domain.StatusAccepted:
		if b.PilotID != nil {
			return fmt.Sprintf("Booking %s: %s. Pilot %s is on the way.", b.ID, label, *b.PilotID)
		}
	case domain.StatusDelivered:
		if b.FinalPrice != nil {
			return fmt.Sprintf("Booking %s: %s. Total charged %s.", b.ID, label, b.FinalPrice.StringFixed(2))
		}
	case domain.StatusCancelled:
		if b.CancelReason != nil {
			return fmt.Sprintf("Booking %s: %s (%s).", b.ID, label, *b.CancelReason)
		}
	}
	return fmt.Sprintf("Booking %s: %s.", b.ID, label)
}
