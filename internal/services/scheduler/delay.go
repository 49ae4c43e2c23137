package scheduler

import (
	"sync"
	"time"

	"github.com/vadiminshakov/skinsync/pkg/retrier"
)

// DefaultDelay pause after an item that hit the network.
const DefaultDelay = 2 * time.Second

// DelayPolicy decides how long to wait after an item that performed a network fetch.
type DelayPolicy interface {
	// Delay returns the pause following an item with the given outcome.
	Delay(o Outcome) time.Duration
	// Nominal returns the per-item pause used for ETA estimates.
	Nominal() time.Duration
}

// FixedDelay waits the same amount after every fetched item.
type FixedDelay time.Duration

func (d FixedDelay) Delay(Outcome) time.Duration { return time.Duration(d) }

func (d FixedDelay) Nominal() time.Duration { return time.Duration(d) }

// BackoffDelay waits base after a fetched item and stretches the pause exponentially
// while consecutive items come back throttled.
type BackoffDelay struct {
	base    time.Duration
	backoff *retrier.Retrier

	mu        sync.Mutex
	throttled int
}

// NewBackoffDelay creates a policy that grows from base up to maxDelay on throttled items.
func NewBackoffDelay(base, maxDelay time.Duration) *BackoffDelay {
	return &BackoffDelay{
		base: base,
		backoff: retrier.New(
			retrier.WithInitialInterval(base),
			retrier.WithMaxInterval(maxDelay),
			retrier.WithMultiplier(2),
		),
	}
}

func (b *BackoffDelay) Delay(o Outcome) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !o.Throttled {
		b.throttled = 0
		return b.base
	}
	b.throttled++
	return b.backoff.Backoff(b.throttled + 1)
}

func (b *BackoffDelay) Nominal() time.Duration { return b.base }
