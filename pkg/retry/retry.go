package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes an exponential backoff schedule. Retry lives only at the
// transport edge (broker reconnects); the ingestion core itself never
// retries.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     0, // unlimited
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// Do runs op under the policy until it succeeds, the attempt budget is
// spent, or ctx is cancelled.
func Do(ctx context.Context, policy Policy, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.Multiplier = policy.Multiplier
	b.MaxElapsedTime = policy.MaxElapsedTime

	attempts := 0
	return backoff.Retry(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if policy.MaxAttempts > 0 && attempts >= policy.MaxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
