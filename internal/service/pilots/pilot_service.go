package pilots

import (
	"context"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/repository"
)

type PilotUseCase interface {
	List(ctx context.Context, filter domain.PilotFilter) ([]domain.Pilot, error)
	Candidates(ctx context.Context) ([]domain.Pilot, error)
}

type PilotCache interface {
	GetPilots(ctx context.Context, filter domain.PilotFilter) ([]domain.Pilot, error)
	SetPilots(ctx context.Context, filter domain.PilotFilter, pilots []domain.Pilot) error
}

type PilotService struct {
	repo  repository.PilotRepository
	cache PilotCache
}

func NewPilotService(repo repository.PilotRepository, cache PilotCache) *PilotService {
	return &PilotService{repo: repo, cache: cache}
}

func (s *PilotService) List(ctx context.Context, filter domain.PilotFilter) ([]domain.Pilot, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetPilots(ctx, filter); err == nil && cached != nil {
			return cached, nil
		}
	}

	pilots, err := s.repo.ListPilots(ctx, filter)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetPilots(ctx, filter, pilots)
	}
	return pilots, nil
}

// Candidates lists pilots that can take an assignment. Cached entries may
// lag; the store re-checks availability when the assignment is made.
func (s *PilotService) Candidates(ctx context.Context) ([]domain.Pilot, error) {
	pilots, err := s.List(ctx, domain.CandidateFilter())
	if err != nil {
		return nil, err
	}
	out := make([]domain.Pilot, 0, len(pilots))
	for _, p := range pilots {
		if p.Assignable() {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ PilotUseCase = (*PilotService)(nil)
