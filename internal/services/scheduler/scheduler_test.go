package scheduler

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinsync/internal/clients"
	"go.uber.org/zap"
)

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
}

func (r *sleepRecorder) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func itemKey(i int) string { return strconv.Itoa(i) }

func TestRun_DelaysOnlyAfterFetchedItems(t *testing.T) {
	rec := &sleepRecorder{}
	s := New(zap.NewNop(), WithDelayPolicy(FixedDelay(time.Second)), WithSleep(rec.sleep))

	fetched := map[int]bool{0: true, 1: false, 2: true, 3: true}
	var order []int
	last, err := RunAll(context.Background(), s, Batch[int]{
		Items: []int{0, 1, 2, 3},
		Key:   itemKey,
		Work: func(_ context.Context, i int) (Outcome, error) {
			order = append(order, i)
			return Outcome{Fetched: fetched[i]}, nil
		},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, order)
	assert.Equal(t, 4, last.Completed)
	// item 1 was a cache hit, item 3 is the last one
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.all())
}

func TestRun_ProgressAndETA(t *testing.T) {
	s := New(zap.NewNop(), WithDelayPolicy(FixedDelay(2*time.Second)), WithSleep(func(time.Duration) {}))

	cached := map[int]bool{2: true}
	var events []Progress
	_, err := RunAll(context.Background(), s, Batch[int]{
		Items:      []int{0, 1, 2, 3},
		Key:        itemKey,
		NeedsFetch: func(i int) bool { return !cached[i] },
		Work: func(_ context.Context, i int) (Outcome, error) {
			return Outcome{Fetched: !cached[i]}, nil
		},
	}, func(p Progress) { events = append(events, p) })
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, []float64{4, 2, 2, 0}, []float64{
		events[0].ETASeconds, events[1].ETASeconds, events[2].ETASeconds, events[3].ETASeconds,
	})
	assert.Equal(t, "2", events[2].Key)
	assert.False(t, events[2].Fetched)
	assert.Equal(t, 4, events[3].Total)
	assert.InDelta(t, 50.0, events[1].Percent(), 0.001)
}

func TestRun_ItemErrorsDoNotStopBatch(t *testing.T) {
	s := New(zap.NewNop(), WithSleep(func(time.Duration) {}))

	var seen []int
	last, err := RunAll(context.Background(), s, Batch[int]{
		Items: []int{0, 1, 2},
		Work: func(_ context.Context, i int) (Outcome, error) {
			seen = append(seen, i)
			if i == 1 {
				return Outcome{Fetched: true}, clients.ErrNetworkFailure
			}
			return Outcome{Fetched: true}, nil
		},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, 3, last.Completed)
}

func TestRun_AbortsOnAuthFailure(t *testing.T) {
	s := New(zap.NewNop(), WithSleep(func(time.Duration) {}))

	var seen []int
	last, err := RunAll(context.Background(), s, Batch[int]{
		Items: []int{0, 1, 2},
		Work: func(_ context.Context, i int) (Outcome, error) {
			seen = append(seen, i)
			if i == 1 {
				return Outcome{Fetched: true}, errors.Wrap(clients.ErrNotAuthenticated, "status 401")
			}
			return Outcome{Fetched: true}, nil
		},
	}, nil)

	assert.ErrorIs(t, err, clients.ErrNotAuthenticated)
	assert.True(t, last.Aborted)
	assert.Equal(t, 2, last.Completed)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestRun_CompletesWhenAbandoned(t *testing.T) {
	s := New(zap.NewNop(), WithDelayPolicy(FixedDelay(time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var mu sync.Mutex
	var processed []int

	ch := Run(ctx, s, Batch[int]{
		Items: []int{0, 1, 2, 3, 4},
		Work: func(ctx context.Context, i int) (Outcome, error) {
			if i == 0 {
				cancel()
			}
			assert.NoError(t, ctx.Err())
			mu.Lock()
			processed = append(processed, i)
			mu.Unlock()
			if i == 4 {
				close(done)
			}
			return Outcome{Fetched: true}, nil
		},
	})

	// the consumer never reads
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not complete")
	}

	mu.Lock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, processed)
	mu.Unlock()

	count := 0
	for range ch {
		count++
	}
	assert.Equal(t, 5, count)
}

func TestBackoffDelay(t *testing.T) {
	d := NewBackoffDelay(time.Second, 5*time.Second)

	assert.Equal(t, time.Second, d.Delay(Outcome{Fetched: true}))
	assert.Equal(t, 2*time.Second, d.Delay(Outcome{Fetched: true, Throttled: true}))
	assert.Equal(t, 4*time.Second, d.Delay(Outcome{Fetched: true, Throttled: true}))
	assert.Equal(t, 5*time.Second, d.Delay(Outcome{Fetched: true, Throttled: true}))
	assert.Equal(t, time.Second, d.Delay(Outcome{Fetched: true}))
	assert.Equal(t, time.Second, d.Nominal())
}
