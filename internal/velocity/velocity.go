// Package velocity counts how often a user applies for credit.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/credbud/internal/domain"
)

// ErrLimitExceeded is returned by Track when a user has applied too often.
var ErrLimitExceeded = errors.New("application limit exceeded")

const counterKey = "loan_applications"

// Service tracks loan application velocity per user.
// The repository is the source of truth; the cache counter gates bursts.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
	limit  int64
	now    func() time.Time
}

// NewService creates a velocity service. A non-positive limit disables
// the rate limit.
func NewService(repo domain.Repository, cache domain.Cache, window time.Duration, limit int) *Service {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		window: window,
		limit:  int64(limit),
		now:    time.Now,
	}
}

// Window returns the counting window.
func (s *Service) Window() time.Duration {
	return s.window
}

// RecentApplications returns the number of applications the user stored
// within the window. It matches rules.VelocityGetter.
func (s *Service) RecentApplications(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("userID is required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	n, err := s.repo.CountLoansSince(ctx, userID, s.now().Add(-s.window))
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return int64(n), nil
}

// Track records one application attempt and returns the attempts seen in
// the window, including this one. When the cache is unavailable the count
// is taken from the repository instead.
func (s *Service) Track(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("userID is required")
	}

	var count int64
	var err error
	if s.cache != nil {
		count, err = s.cache.IncrementCounter(ctx, userID, counterKey, s.window)
	}
	if s.cache == nil || err != nil {
		if err != nil {
			slog.Warn("velocity counter unavailable, using repository", "user_id", userID, "error", err)
		}
		stored, rerr := s.RecentApplications(ctx, userID)
		if rerr != nil {
			return 0, rerr
		}
		count = stored + 1
	}

	if s.limit > 0 && count > s.limit {
		return count, fmt.Errorf("%w: %d applications in %s", ErrLimitExceeded, count, s.window)
	}
	return count, nil
}

// Reset clears the cached counter for a user.
func (s *Service) Reset(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.ResetCounter(ctx, userID, counterKey)
}
