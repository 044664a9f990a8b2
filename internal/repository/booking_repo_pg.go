package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Domenick1991/courierbooking/internal/compat"
	"github.com/Domenick1991/courierbooking/internal/db"
	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type BookingRepository interface {
	Get(ctx context.Context, id string) (*domain.Booking, error)
	Transition(ctx context.Context, id string, expected, target domain.Status, note string, finalPrice *decimal.Decimal) (*domain.Booking, error)
	Cancel(ctx context.Context, id string, expected domain.Status, reason string) (*domain.Booking, error)
	AssignPilot(ctx context.Context, id string, expected domain.Status, pilotID string) (*domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, status, pickup_address, dropoff_address, pilot_id, estimated_price::text, final_price::text, cancel_reason, note, created_at, updated_at`

func (r *PGBookingRepository) Get(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return b, err
}

func (r *PGBookingRepository) Transition(ctx context.Context, id string, expected, target domain.Status, note string, finalPrice *decimal.Decimal) (*domain.Booking, error) {
	var updated *domain.Booking
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) (err error) {
		updated, err = transition(ctx, tx, id, expected, target, note, finalPrice)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PGBookingRepository) Cancel(ctx context.Context, id string, expected domain.Status, reason string) (*domain.Booking, error) {
	var updated *domain.Booking
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) (err error) {
		updated, err = cancelBooking(ctx, tx, id, expected, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AssignPilot matches a pilot to a booking still awaiting one. The pilot row
// is locked so two bookings cannot claim the same pilot.
func (r *PGBookingRepository) AssignPilot(ctx context.Context, id string, expected domain.Status, pilotID string) (*domain.Booking, error) {
	var updated *domain.Booking
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) (err error) {
		updated, err = assignPilot(ctx, tx, id, expected, pilotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// querier is the part of pgx.Tx the booking statements use.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// The status guard compares against every stored form of expected, so rows
// still holding a legacy name match the canonical status they read back as.
const statusGuard = `upper(btrim(status)) = ANY($2::text[])`

func transition(ctx context.Context, q querier, id string, expected, target domain.Status, note string, finalPrice *decimal.Decimal) (*domain.Booking, error) {
	var price *string
	if finalPrice != nil {
		s := finalPrice.StringFixed(2)
		price = &s
	}

	b, err := scanBooking(q.QueryRow(ctx, `UPDATE bookings
		SET status=$3,
			note=COALESCE($4, note),
			final_price=COALESCE(final_price, CAST($5 AS TEXT)::numeric),
			updated_at=now()
		WHERE id=$1 AND `+statusGuard+`
		RETURNING `+bookingColumns, id, expected.StoredAs(), target, nullable(note), price))
	if err != nil {
		return nil, missingOrConflict(ctx, q, id, err)
	}
	if target == domain.StatusDelivered && b.PilotID != nil {
		if err := releasePilot(ctx, q, *b.PilotID, true); err != nil {
			return nil, err
		}
	}
	if err := insertEvent(ctx, q, id, "STATUS_CHANGED", expected, target, map[string]any{"note": note, "final_price": price}); err != nil {
		return nil, err
	}
	return b, nil
}

func cancelBooking(ctx context.Context, q querier, id string, expected domain.Status, reason string) (*domain.Booking, error) {
	b, err := scanBooking(q.QueryRow(ctx, `UPDATE bookings
		SET status=$3, cancel_reason=$4, updated_at=now()
		WHERE id=$1 AND `+statusGuard+`
		RETURNING `+bookingColumns, id, expected.StoredAs(), domain.StatusCancelled, reason))
	if err != nil {
		return nil, missingOrConflict(ctx, q, id, err)
	}
	if b.PilotID != nil {
		if err := releasePilot(ctx, q, *b.PilotID, false); err != nil {
			return nil, err
		}
	}
	if err := insertEvent(ctx, q, id, "CANCELLED", expected, domain.StatusCancelled, map[string]any{"reason": reason}); err != nil {
		return nil, err
	}
	return b, nil
}

func assignPilot(ctx context.Context, q querier, id string, expected domain.Status, pilotID string) (*domain.Booking, error) {
	var status string
	var online bool
	err := q.QueryRow(ctx, `SELECT status, is_online FROM pilots WHERE id=$1 FOR UPDATE`, pilotID).Scan(&status, &online)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: pilot %s does not exist", domain.ErrPilotUnavailable, pilotID)
	}
	if err != nil {
		return nil, err
	}
	p := domain.Pilot{Status: domain.PilotStatus(status), Online: online}
	if !p.Assignable() {
		return nil, fmt.Errorf("%w: pilot %s is %s (online=%t)", domain.ErrPilotUnavailable, pilotID, status, online)
	}

	b, err := scanBooking(q.QueryRow(ctx, `UPDATE bookings
		SET pilot_id=$3, status=$4, updated_at=now()
		WHERE id=$1 AND `+statusGuard+` AND pilot_id IS NULL
		RETURNING `+bookingColumns, id, expected.StoredAs(), pilotID, domain.StatusAccepted))
	if err != nil {
		return nil, missingOrConflict(ctx, q, id, err)
	}
	if _, err := q.Exec(ctx, `UPDATE pilots SET status=$2, updated_at=now() WHERE id=$1`, pilotID, domain.PilotStatusBusy); err != nil {
		return nil, err
	}
	if err := insertEvent(ctx, q, id, "PILOT_ASSIGNED", expected, domain.StatusAccepted, map[string]any{"pilot_id": pilotID}); err != nil {
		return nil, err
	}
	return b, nil
}

// missingOrConflict classifies a guarded UPDATE that matched no row.
func missingOrConflict(ctx context.Context, q querier, id string, err error) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s", domain.ErrConflict, id)
}

func releasePilot(ctx context.Context, q querier, pilotID string, delivered bool) error {
	inc := 0
	if delivered {
		inc = 1
	}
	_, err := q.Exec(ctx, `UPDATE pilots
		SET status=CASE WHEN status=$2 THEN $3 ELSE status END,
			delivery_count=delivery_count+$4,
			updated_at=now()
		WHERE id=$1`, pilotID, domain.PilotStatusBusy, domain.PilotStatusAvailable, inc)
	return err
}

func insertEvent(ctx context.Context, q querier, bookingID, eventType string, from, to domain.Status, data any) error {
	var payload *string
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		s := string(b)
		payload = &s
	}
	_, err := q.Exec(ctx, `INSERT INTO booking_events (booking_id, event_type, from_status, to_status, data)
		VALUES ($1, $2, $3, $4, CAST($5 AS jsonb))`, bookingID, eventType, from, to, payload)
	return err
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b               domain.Booking
		status          string
		pickup, dropoff []byte
		estimated       string
		final           *string
	)
	if err := row.Scan(&b.ID, &status, &pickup, &dropoff, &b.PilotID, &estimated, &final, &b.CancelReason, &b.Note, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return fillBooking(&b, status, pickup, dropoff, estimated, final)
}

func fillBooking(b *domain.Booking, status string, pickup, dropoff []byte, estimated string, final *string) (*domain.Booking, error) {
	// Unknown values are kept as-is so the controller can report them.
	b.Status = domain.Status(status)
	if s, err := domain.ParseStatus(status); err == nil {
		b.Status = s
	}

	var err error
	if b.Pickup, err = compat.DecodeAddress(pickup); err != nil {
		return nil, fmt.Errorf("booking %s pickup: %w", b.ID, err)
	}
	if b.Dropoff, err = compat.DecodeAddress(dropoff); err != nil {
		return nil, fmt.Errorf("booking %s dropoff: %w", b.ID, err)
	}
	if b.EstimatedPrice, err = decimal.NewFromString(estimated); err != nil {
		return nil, fmt.Errorf("booking %s estimated price: %w", b.ID, err)
	}
	if final != nil {
		p, err := decimal.NewFromString(*final)
		if err != nil {
			return nil, fmt.Errorf("booking %s final price: %w", b.ID, err)
		}
		b.FinalPrice = &p
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ BookingRepository = (*PGBookingRepository)(nil)
