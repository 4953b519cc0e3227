package persist

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/pkg/models"
)

// RetryConfig holds retry configuration for store calls.
type RetryConfig struct {
	MaxAttempts int           // total attempts, at least 1
	InitialWait time.Duration // wait before the second attempt
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      float64 // 0-1
	// Timeout bounds each attempt (0 = only the caller's context).
	Timeout time.Duration
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
		Timeout:     10 * time.Second,
	}
}

// permanent reports errors that fail the same way on every attempt.
func permanent(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, models.ErrInvalidWorkspaceName) ||
		errors.Is(err, models.ErrInvalidKind)
}

func (c RetryConfig) wait(attempt int) time.Duration {
	wait := float64(c.InitialWait) * math.Pow(c.Multiplier, float64(attempt-1))
	if c.MaxWait > 0 && wait > float64(c.MaxWait) {
		wait = float64(c.MaxWait)
	}
	if c.Jitter > 0 {
		wait += wait * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(wait)
}

// retryDo runs fn until it succeeds, fails permanently or attempts run out.
func retryDo(ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if permanent(err) || attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.RecordSaveRetry()
		logging.Debug("retrying store call",
			logging.String("op", op),
			logging.Int("attempt", attempt),
			logging.Err(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.wait(attempt)):
		}
	}
	return lastErr
}

type retryStore struct {
	next Store
	cfg  RetryConfig
}

// WithRetry wraps s so every call is retried with exponential backoff.
func WithRetry(s Store, cfg RetryConfig) Store {
	return &retryStore{next: s, cfg: cfg}
}

func (r *retryStore) Load(ctx context.Context, workspace string) (*models.Snapshot, error) {
	var snap *models.Snapshot
	err := retryDo(ctx, r.cfg, "load", func(ctx context.Context) error {
		var err error
		snap, err = r.next.Load(ctx, workspace)
		return err
	})
	return snap, err
}

func (r *retryStore) Save(ctx context.Context, snap *models.Snapshot) error {
	return retryDo(ctx, r.cfg, "save", func(ctx context.Context) error {
		return r.next.Save(ctx, snap)
	})
}

func (r *retryStore) Delete(ctx context.Context, workspace string) error {
	return retryDo(ctx, r.cfg, "delete", func(ctx context.Context) error {
		return r.next.Delete(ctx, workspace)
	})
}

func (r *retryStore) List(ctx context.Context) ([]string, error) {
	var names []string
	err := retryDo(ctx, r.cfg, "list", func(ctx context.Context) error {
		var err error
		names, err = r.next.List(ctx)
		return err
	})
	return names, err
}

func (r *retryStore) Type() string { return r.next.Type() }

func (r *retryStore) Close() error { return r.next.Close() }
