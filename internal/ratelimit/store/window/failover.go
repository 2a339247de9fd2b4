package window

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"repairhub/internal/ratelimit/models"
	"repairhub/pkg/platform/circuit"
)

// Counter is the contract shared by every window store.
type Counter interface {
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (models.Window, error)
	Reset(ctx context.Context, key string) error
}

// FailoverStore counts against primary and switches to fallback once the
// breaker opens. The primary is still tried on every call so the circuit can
// close again; while it is recovering the primary's answers are used.
type FailoverStore struct {
	primary  Counter
	fallback Counter
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFailoverStore(primary, fallback Counter, breaker *circuit.Breaker, logger *slog.Logger) (*FailoverStore, error) {
	if primary == nil || fallback == nil {
		return nil, errors.New("primary and fallback stores are required")
	}
	if breaker == nil {
		breaker = circuit.New("ratelimit-store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverStore{primary: primary, fallback: fallback, breaker: breaker, logger: logger}, nil
}

func (s *FailoverStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (models.Window, error) {
	w, err := s.primary.Increment(ctx, key, now, window)
	if err != nil {
		useFallback, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "rate limit store degraded, using in-memory fallback",
				"breaker", s.breaker.Name(), "error", err)
		}
		if useFallback {
			return s.fallback.Increment(ctx, key, now, window)
		}
		return models.Window{}, err
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "rate limit store recovered", "breaker", s.breaker.Name())
	}
	return w, nil
}

func (s *FailoverStore) Reset(ctx context.Context, key string) error {
	return errors.Join(s.primary.Reset(ctx, key), s.fallback.Reset(ctx, key))
}

// Degraded reports whether counts currently come from the fallback.
func (s *FailoverStore) Degraded() bool {
	return s.breaker.IsOpen()
}
