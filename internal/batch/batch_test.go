package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bananabot/internal/infra"
)

type recorder struct {
	mu      sync.Mutex
	calls   atomic.Int32
	batches [][]string
}

func (r *recorder) handle(ctx context.Context, key string, items []string) error {
	r.calls.Add(1)
	r.mu.Lock()
	r.batches = append(r.batches, items)
	r.mu.Unlock()
	return nil
}

func submitAll(t *testing.T, c *Collector[string], key string, items map[int64]string, order []int64) error {
	t.Helper()
	var firstErr error
	var wg sync.WaitGroup
	first := make(chan struct{})
	for i, seq := range order {
		if i == 0 {
			wg.Add(1)
			go func(seq int64) {
				defer wg.Done()
				close(first)
				firstErr = c.Submit(context.Background(), key, seq, items[seq])
			}(seq)
			<-first
			time.Sleep(20 * time.Millisecond)
			continue
		}
		assert.NoError(t, c.Submit(context.Background(), key, seq, items[seq]))
	}
	wg.Wait()
	return firstErr
}

func TestCollectorFlushesOnceInSequenceOrder(t *testing.T) {
	rec := &recorder{}
	c := New(rec.handle, infra.NopLogger(), WithQuietPeriod(MinQuietPeriod))

	items := map[int64]string{1: "a", 2: "b", 3: "c"}
	err := submitAll(t, c, "album-1", items, []int64{3, 1, 2})
	require.NoError(t, err)

	require.Equal(t, int32(1), rec.calls.Load())
	require.Equal(t, []string{"a", "b", "c"}, rec.batches[0])
	require.Zero(t, c.Pending())
}

func TestCollectorRejectsOversizedBatch(t *testing.T) {
	rec := &recorder{}
	c := New(rec.handle, infra.NopLogger(), WithQuietPeriod(MinQuietPeriod))

	items := map[int64]string{1: "a", 2: "b", 3: "c", 4: "d", 5: "e"}
	err := submitAll(t, c, "album-2", items, []int64{1, 2, 3, 4, 5})

	require.ErrorIs(t, err, ErrCapacity)
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	require.Equal(t, 5, capErr.Count)
	require.Equal(t, DefaultMaxItems, capErr.Max)
	require.Zero(t, rec.calls.Load())
}

type photos []string

func (p photos) Weight() int { return len(p) }

func TestCollectorCountsWeightedItems(t *testing.T) {
	var got [][]photos
	c := New(func(ctx context.Context, key string, items []photos) error {
		got = append(got, items)
		return nil
	}, infra.NopLogger(), WithQuietPeriod(MinQuietPeriod))

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), "album-3", 1, photos{"a", "b", "c"}) }()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Submit(context.Background(), "album-3", 2, photos{"d", "e"}))

	err := <-done
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	require.Equal(t, 5, capErr.Count)
	require.Empty(t, got)

	require.NoError(t, c.Submit(context.Background(), "album-4", 1, photos{"a", "b", "c", "d"}))
	require.Len(t, got, 1)
}

func TestCollectorSeparatesKeys(t *testing.T) {
	rec := &recorder{}
	c := New(rec.handle, infra.NopLogger(), WithQuietPeriod(MinQuietPeriod))

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			assert.NoError(t, c.Submit(context.Background(), key, 1, key))
		}(key)
	}
	wg.Wait()
	require.Equal(t, int32(2), rec.calls.Load())
}

func TestCollectorCancelledFirstSubmitterDropsBatch(t *testing.T) {
	rec := &recorder{}
	c := New(rec.handle, infra.NopLogger(), WithQuietPeriod(MaxQuietPeriod))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Submit(ctx, "k", 1, "x") }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	require.Zero(t, rec.calls.Load())
	require.Zero(t, c.Pending())
}

func TestQuietPeriodIsClamped(t *testing.T) {
	rec := &recorder{}
	require.Equal(t, MinQuietPeriod, New(rec.handle, infra.NopLogger(), WithQuietPeriod(time.Millisecond)).QuietPeriod())
	require.Equal(t, MaxQuietPeriod, New(rec.handle, infra.NopLogger(), WithQuietPeriod(time.Minute)).QuietPeriod())
}
