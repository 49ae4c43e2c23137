// Package scheduler walks item batches one at a time and paces network fetches
// so the remote API does not throttle the whole run.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/internal/clients"
	"go.uber.org/zap"
)

// Outcome what processing one item involved.
type Outcome struct {
	// Fetched the item performed at least one network call.
	Fetched bool
	// Throttled the remote API rate limited the item and cached data was served.
	Throttled bool
}

// Worker processes one item. Errors not matched by the abort predicate are
// recorded in the item's Progress and the batch moves on.
type Worker[T any] func(ctx context.Context, item T) (Outcome, error)

// Progress is published after every item.
type Progress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	ETASeconds float64 `json:"eta_seconds"`
	Key        string  `json:"key"`
	Fetched    bool    `json:"fetched"`
	Err        error   `json:"-"`
	// Aborted the batch stopped at this item, Err holds the reason.
	Aborted bool `json:"aborted"`
}

// Percent completion in 0..100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Completed) * 100 / float64(p.Total)
}

// Batch is a list of items and the work to run for each of them.
type Batch[T any] struct {
	Items []T
	// Key names an item in progress events.
	Key func(T) string
	// NeedsFetch estimates whether an item will hit the network. Nil means every item will.
	NeedsFetch func(T) bool
	Work       Worker[T]
}

// Scheduler runs batches sequentially.
type Scheduler struct {
	delay   DelayPolicy
	abortOn func(error) bool
	sleep   func(time.Duration)
	l       *zap.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDelayPolicy sets the pause policy between fetched items.
func WithDelayPolicy(p DelayPolicy) Option {
	return func(s *Scheduler) { s.delay = p }
}

// WithAbortOn sets the predicate of errors that stop the batch.
func WithAbortOn(fn func(error) bool) Option {
	return func(s *Scheduler) { s.abortOn = fn }
}

// WithSleep replaces time.Sleep.
func WithSleep(fn func(time.Duration)) Option {
	return func(s *Scheduler) { s.sleep = fn }
}

// New creates a scheduler with a fixed 2s delay that aborts on authentication failures.
func New(l *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		delay: FixedDelay(DefaultDelay),
		abortOn: func(err error) bool {
			return errors.Is(err, clients.ErrNotAuthenticated)
		},
		sleep: time.Sleep,
		l:     l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes the batch in input order in a background goroutine and streams progress.
//
// The run is detached from ctx cancellation: once started it completes so cache coverage
// converges. The channel is buffered for every event, so a consumer that stops reading
// never blocks the run. The channel is closed when the batch ends.
func Run[T any](ctx context.Context, s *Scheduler, b Batch[T]) <-chan Progress {
	out := make(chan Progress, len(b.Items))
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(out)
		run(ctx, s, b, out)
	}()

	return out
}

// RunAll runs the batch and blocks until it ends.
// It returns the last progress event and the abort reason, if any.
func RunAll[T any](ctx context.Context, s *Scheduler, b Batch[T], onProgress func(Progress)) (Progress, error) {
	last := Progress{Total: len(b.Items)}
	for p := range Run(ctx, s, b) {
		last = p
		if onProgress != nil {
			onProgress(p)
		}
	}
	if last.Aborted {
		return last, last.Err
	}
	return last, nil
}

func run[T any](ctx context.Context, s *Scheduler, b Batch[T], out chan<- Progress) {
	total := len(b.Items)
	for i, item := range b.Items {
		key := ""
		if b.Key != nil {
			key = b.Key(item)
		}

		outcome, err := b.Work(ctx, item)
		p := Progress{
			Completed: i + 1,
			Total:     total,
			Key:       key,
			Fetched:   outcome.Fetched,
			Err:       err,
		}

		if err != nil && s.abortOn(err) {
			p.Aborted = true
			s.l.Warn("batch aborted", zap.String("item", key), zap.Int("completed", i), zap.Error(err))
			out <- p
			return
		}
		if err != nil {
			s.l.Warn("item failed", zap.String("item", key), zap.Error(err))
		}

		p.ETASeconds = eta(s, b, i+1).Seconds()
		out <- p

		if outcome.Fetched && i < total-1 {
			s.sleep(s.delay.Delay(outcome))
		}
	}
}

// eta estimates the time left after the first done items.
func eta[T any](s *Scheduler, b Batch[T], done int) time.Duration {
	pending := 0
	for _, item := range b.Items[done:] {
		if b.NeedsFetch == nil || b.NeedsFetch(item) {
			pending++
		}
	}
	return time.Duration(pending) * s.delay.Nominal()
}

// NominalDelay per-item pause used for ETA estimates.
func (s *Scheduler) NominalDelay() time.Duration {
	return s.delay.Nominal()
}
