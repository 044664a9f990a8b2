package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/realtime"
	"github.com/Domenick1991/courierbooking/internal/repository"
	"github.com/shopspring/decimal"
)

type BookingUseCase interface {
	Get(ctx context.Context, id string) (*domain.Booking, error)
	Refresh(ctx context.Context, id string) (*domain.Booking, error)
	Actions(b *domain.Booking) (domain.Actions, error)
	Advance(ctx context.Context, b *domain.Booking, input AdvanceInput) (*domain.Booking, error)
	Cancel(ctx context.Context, b *domain.Booking, reason string) (*domain.Booking, error)
	AssignPilot(ctx context.Context, b *domain.Booking, pilotID string) (*domain.Booking, error)
	ListCandidates(ctx context.Context) ([]domain.Pilot, error)
}

type Cache interface {
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	SetBooking(ctx context.Context, b *domain.Booking) error
	DeleteBooking(ctx context.Context, id string) error
	// AcquireBookingLock returns an owner token, or "" if the lock is held.
	AcquireBookingLock(ctx context.Context, id string, ttl time.Duration) (string, error)
	ReleaseBookingLock(ctx context.Context, id, token string) error
	InvalidatePilots(ctx context.Context) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Pilots supplies the assignment candidates.
type Pilots interface {
	Candidates(ctx context.Context) ([]domain.Pilot, error)
}

type AdvanceInput struct {
	Target     domain.Status    `json:"target_status"`
	Note       string           `json:"note,omitempty"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
}

type BookingService struct {
	bookings           repository.BookingRepository
	pilots             Pilots
	cache              Cache
	producer           Producer
	eventsTopic        string
	notificationsTopic string
	requestTimeout     time.Duration
	minReasonLength    int
	lockTTL            time.Duration
	logger             *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithRequestTimeout(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

func WithMinReasonLength(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.minReasonLength = n
		}
	}
}

func WithLockTTL(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func WithLogger(l *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewBookingService wires the lifecycle controller. cache, producer and
// pilots may be nil.
func NewBookingService(
	bookings repository.BookingRepository,
	pilots Pilots,
	cache Cache,
	producer Producer,
	eventsTopic string,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:        bookings,
		pilots:          pilots,
		cache:           cache,
		producer:        producer,
		eventsTopic:     eventsTopic,
		requestTimeout:  5 * time.Second,
		minReasonLength: domain.MinCancelReasonLength,
		lockTTL:         30 * time.Second,
		logger:          slog.Default(),
		inFlight:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) Get(ctx context.Context, id string) (*domain.Booking, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetBooking(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}
	return s.Refresh(ctx, id)
}

// Refresh reads the booking from the store and replaces the cached copy.
func (s *BookingService) Refresh(ctx context.Context, id string) (*domain.Booking, error) {
	var b *domain.Booking
	err := s.call(ctx, func(ctx context.Context) (err error) {
		b, err = s.bookings.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.remember(ctx, b)
	return b, nil
}

func (s *BookingService) Actions(b *domain.Booking) (domain.Actions, error) {
	return domain.ActionsFor(b.Status)
}

// Advance moves b forward to input.Target, which may skip intermediate
// steps. A final price can be recorded once, on delivery.
func (s *BookingService) Advance(ctx context.Context, b *domain.Booking, input AdvanceInput) (*domain.Booking, error) {
	if !b.Status.Valid() {
		return nil, &domain.UnknownStatusError{Value: string(b.Status)}
	}
	if !domain.CanTransition(b.Status, input.Target) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, b.Status, input.Target)
	}
	if input.FinalPrice != nil && (input.Target != domain.StatusDelivered || b.FinalPrice != nil) {
		return nil, domain.ErrFinalPriceImmutable
	}

	return s.mutate(ctx, b, "advanced", func(ctx context.Context) (*domain.Booking, error) {
		return s.bookings.Transition(ctx, b.ID, b.Status, input.Target, input.Note, input.FinalPrice)
	})
}

func (s *BookingService) Cancel(ctx context.Context, b *domain.Booking, reason string) (*domain.Booking, error) {
	if !b.Status.Valid() {
		return nil, &domain.UnknownStatusError{Value: string(b.Status)}
	}
	if !domain.CanCancel(b.Status) {
		return nil, fmt.Errorf("%w: status %s", domain.ErrNotCancellable, b.Status)
	}
	if err := domain.ValidateCancelReason(reason, s.minReasonLength); err != nil {
		return nil, err
	}

	return s.mutate(ctx, b, "cancelled", func(ctx context.Context) (*domain.Booking, error) {
		return s.bookings.Cancel(ctx, b.ID, b.Status, reason)
	})
}

// AssignPilot attaches pilotID and moves the booking to ACCEPTED. The store
// decides atomically whether the pilot is still free.
func (s *BookingService) AssignPilot(ctx context.Context, b *domain.Booking, pilotID string) (*domain.Booking, error) {
	if !b.Status.Valid() {
		return nil, &domain.UnknownStatusError{Value: string(b.Status)}
	}
	if !domain.CanAssignPilot(b.Status) {
		return nil, fmt.Errorf("%w: status %s", domain.ErrNotAssignable, b.Status)
	}
	if pilotID == "" {
		return nil, fmt.Errorf("%w: empty pilot id", domain.ErrPilotUnavailable)
	}

	updated, err := s.mutate(ctx, b, "pilot_assigned", func(ctx context.Context) (*domain.Booking, error) {
		return s.bookings.AssignPilot(ctx, b.ID, b.Status, pilotID)
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.InvalidatePilots(ctx); err != nil {
			s.logger.Warn("invalidate pilot cache", "booking", b.ID, "err", err)
		}
	}
	return updated, nil
}

func (s *BookingService) ListCandidates(ctx context.Context) ([]domain.Pilot, error) {
	if s.pilots == nil {
		return nil, nil
	}
	return s.pilots.Candidates(ctx)
}

// mutate runs one store mutation for b under the per-booking guard. b itself
// is never written to; on success the store's snapshot is returned.
func (s *BookingService) mutate(ctx context.Context, b *domain.Booking, action string, do func(context.Context) (*domain.Booking, error)) (*domain.Booking, error) {
	release, err := s.acquire(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated *domain.Booking
	err = s.call(ctx, func(ctx context.Context) (err error) {
		updated, err = do(ctx)
		return err
	})
	if err != nil {
		if domain.OutcomeUnknown(err) && s.cache != nil {
			if derr := s.cache.DeleteBooking(context.WithoutCancel(ctx), b.ID); derr != nil {
				s.logger.Warn("drop cached booking", "booking", b.ID, "err", derr)
			}
		}
		s.logger.Info("booking mutation failed", "booking", b.ID, "action", action, "from", b.Status, "err", err)
		return nil, err
	}

	s.logger.Info("booking mutated", "booking", updated.ID, "action", action, "from", b.Status, "to", updated.Status)
	s.remember(ctx, updated)
	if err := s.publish(ctx, action, updated); err != nil {
		s.logger.Warn("publish booking event", "booking", updated.ID, "action", action, "err", err)
	}
	return updated, nil
}

// acquire takes the in-process guard for id and, with a cache configured,
// the shared lock.
func (s *BookingService) acquire(ctx context.Context, id string) (func(), error) {
	s.mu.Lock()
	if _, busy := s.inFlight[id]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrBusy, id)
	}
	s.inFlight[id] = struct{}{}
	s.mu.Unlock()

	local := func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
	}
	if s.cache == nil {
		return local, nil
	}

	token, err := s.cache.AcquireBookingLock(ctx, id, s.lockTTL)
	if err != nil {
		// The local guard still holds; a lock outage must not stop dispatch.
		s.logger.Warn("booking lock unavailable", "booking", id, "err", err)
		return local, nil
	}
	if token == "" {
		local()
		return nil, fmt.Errorf("%w: %s", domain.ErrBusy, id)
	}
	return func() {
		if err := s.cache.ReleaseBookingLock(context.WithoutCancel(ctx), id, token); err != nil {
			s.logger.Warn("release booking lock", "booking", id, "err", err)
		}
		local()
	}, nil
}

// call bounds fn by the request timeout and classifies its failure.
func (s *BookingService) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return classify(fn(ctx))
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrTimeout),
		errors.Is(err, domain.ErrTransport),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrPilotUnavailable),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrNotCancellable),
		errors.Is(err, domain.ErrNotAssignable),
		errors.Is(err, domain.ErrInvalidReason),
		errors.Is(err, domain.ErrFinalPriceImmutable),
		errors.Is(err, domain.ErrUnknownStatus):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	default:
		// Includes context.Canceled: the request may already have reached
		// the store, so its outcome is as unknown as a dropped connection.
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
}

func (s *BookingService) remember(ctx context.Context, b *domain.Booking) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetBooking(ctx, b); err != nil {
		s.logger.Warn("cache booking", "booking", b.ID, "err", err)
	}
}

func (s *BookingService) publish(ctx context.Context, action string, b *domain.Booking) error {
	if s.producer == nil || s.eventsTopic == "" {
		return nil
	}
	event := realtime.BookingUpdated(action, b)
	if err := s.producer.Publish(ctx, s.eventsTopic, b.ID, event); err != nil {
		return err
	}
	if s.notificationsTopic != "" {
		return s.producer.Publish(ctx, s.notificationsTopic, b.ID, event)
	}
	return nil
}

var _ BookingUseCase = (*BookingService)(nil)
