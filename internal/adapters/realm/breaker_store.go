package realm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/ports"
)

// BreakerOptions tunes a BreakerStore.
type BreakerOptions struct {
	Name string
	// Threshold is the minimum request count before the failure ratio can trip the breaker.
	Threshold int
	// Timeout is how long the breaker stays open before allowing a probe.
	Timeout time.Duration
	Logger  *slog.Logger
}

// BreakerStore guards a remote PrincipalStore with a circuit breaker so a
// failing store is reported as unavailable without waiting on it.
type BreakerStore struct {
	next ports.PrincipalStore
	cb   *gobreaker.CircuitBreaker
}

var _ ports.PrincipalStore = (*BreakerStore)(nil)

// NewBreakerStore wraps next.
func NewBreakerStore(next ports.PrincipalStore, opts BreakerOptions) *BreakerStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.Name
	if name == "" {
		name = "realm-store"
	}
	threshold := safeIntToUint32(opts.Threshold)
	if threshold == 0 {
		threshold = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    opts.Timeout,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// A missing account is a healthy answer.
			return err == nil || apperrors.IsNotFound(err)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Lookup delegates to the wrapped store through the breaker.
func (s *BreakerStore) Lookup(ctx context.Context, login string) (domainauth.RealmAccount, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Lookup(ctx, login)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domainauth.RealmAccount{}, apperrors.Unavailable("principal store unavailable", err)
		}
		if apperrors.IsNotFound(err) || apperrors.IsUnavailable(err) {
			return domainauth.RealmAccount{}, err
		}
		return domainauth.RealmAccount{}, apperrors.Unavailable("principal store lookup failed", err)
	}
	acct, _ := res.(domainauth.RealmAccount)
	return acct, nil
}

// State returns the current breaker state.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
