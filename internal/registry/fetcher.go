package registry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stevedore-sh/stevedore/pkg/logger"
)

const (
	defaultMaxAttempts     = 4
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 15 * time.Second
)

// Fetcher pulls image references with bounded exponential backoff. Transient
// failures (network, registry throttling) are retried; permanent ones
// (not found, auth) fail immediately. Fetching is idempotent: re-pulling an
// already local image is a cheap no-op on the engine side.
type Fetcher struct {
	client      Client
	maxAttempts uint64
	initial     time.Duration
}

// NewFetcher creates a fetcher over the given client. maxAttempts <= 0 uses
// the default.
func NewFetcher(client Client, maxAttempts int) *Fetcher {
	attempts := uint64(defaultMaxAttempts)
	if maxAttempts > 0 {
		attempts = uint64(maxAttempts)
	}
	return &Fetcher{client: client, maxAttempts: attempts, initial: defaultInitialInterval}
}

// Fetch pulls ref, retrying transient failures with jittered exponential
// backoff up to the attempt budget. The returned error is always a
// *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, ref string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.initial
	bo.MaxInterval = defaultMaxInterval

	attempt := 0
	operation := func() error {
		attempt++
		err := f.client.Pull(ctx, ref)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(&FetchError{Ref: ref, Transient: false, Err: err})
		}
		logger.Warn("Transient pull failure, will retry",
			"image", ref, "attempt", attempt, "error", err)
		return &FetchError{Ref: ref, Transient: true, Err: err}
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, f.maxAttempts-1), ctx))
	if err != nil {
		if fe, ok := err.(*FetchError); ok {
			return fe
		}
		return &FetchError{Ref: ref, Transient: false, Err: err}
	}
	return nil
}
