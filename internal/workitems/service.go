package workitems

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Reader is the query surface the service needs.
type Reader interface {
	Critical(ctx context.Context) ([]Item, error)
	ActiveForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]Item, error)
	Pulse(ctx context.Context) ([]Pulse, error)
}

const pulseTimeout = 10 * time.Second

// Service exposes work item reads. Concurrent pulse requests share one query.
type Service struct {
	repo    Reader
	group   singleflight.Group
	timeout time.Duration
}

// NewService constructs a Service.
func NewService(repo Reader) *Service {
	return &Service{repo: repo, timeout: pulseTimeout}
}

// Critical lists items needing principal attention.
func (s *Service) Critical(ctx context.Context) ([]Item, error) {
	return s.repo.Critical(ctx)
}

// ActiveForOwner lists the top limit unresolved items of ownerID.
func (s *Service) ActiveForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.repo.ActiveForOwner(ctx, ownerID, limit)
}

// Pulse returns the per-business portfolio summary. The shared query runs
// detached from any one caller, so a cancelled request only abandons its
// own wait.
func (s *Service) Pulse(ctx context.Context) ([]Pulse, error) {
	resultChan := s.group.DoChan("pulse", func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.repo.Pulse(flightCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers sharing a flight must not alias each other's slice.
		shared := res.Val.([]Pulse)
		return append([]Pulse(nil), shared...), nil
	}
}
