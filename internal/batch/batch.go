// Package batch groups chat items that arrive as one burst (an album of
// photos sent together) and hands them downstream exactly once.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bananabot/internal/metrics"
)

const (
	MinQuietPeriod     = 500 * time.Millisecond
	MaxQuietPeriod     = 800 * time.Millisecond
	DefaultMaxItems    = 4
	defaultQuietPeriod = MaxQuietPeriod
)

// ErrCapacity marks a batch that carried more items than allowed.
var ErrCapacity = errors.New("batch capacity exceeded")

// Weighted items count as Weight units towards the capacity instead of one.
type Weighted interface {
	Weight() int
}

// CapacityError reports the offending batch size in capacity units.
type CapacityError struct {
	Key   string
	Count int
	Max   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("batch %s: %d units, at most %d allowed", e.Key, e.Count, e.Max)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// Handler receives a flushed batch in sequence order.
type Handler[T any] func(ctx context.Context, key string, items []T) error

type entry[T any] struct {
	seq   int64
	value T
}

type pending[T any] struct {
	entries   []entry[T]
	createdAt time.Time
}

// Collector buffers items per correlation key for a quiet period.
type Collector[T any] struct {
	mu      sync.Mutex
	batches map[string]*pending[T]

	quiet   time.Duration
	max     int
	handler Handler[T]
	logger  zerolog.Logger
}

// Option configures a Collector.
type Option func(*settings)

type settings struct {
	quiet time.Duration
	max   int
}

// WithQuietPeriod sets the wait after the first item, clamped to
// [MinQuietPeriod, MaxQuietPeriod].
func WithQuietPeriod(d time.Duration) Option {
	return func(s *settings) { s.quiet = d }
}

// WithMaxItems sets the largest accepted batch, in capacity units.
func WithMaxItems(n int) Option {
	return func(s *settings) { s.max = n }
}

// New creates a collector that flushes into handler.
func New[T any](handler Handler[T], logger zerolog.Logger, opts ...Option) *Collector[T] {
	s := settings{quiet: defaultQuietPeriod, max: DefaultMaxItems}
	for _, opt := range opts {
		opt(&s)
	}
	s.quiet = min(max(s.quiet, MinQuietPeriod), MaxQuietPeriod)
	if s.max <= 0 {
		s.max = DefaultMaxItems
	}
	return &Collector[T]{
		batches: make(map[string]*pending[T]),
		quiet:   s.quiet,
		max:     s.max,
		handler: handler,
		logger:  logger.With().Str("component", "batch").Logger(),
	}
}

// QuietPeriod returns the effective quiet period.
func (c *Collector[T]) QuietPeriod() time.Duration { return c.quiet }

// Submit adds item to the batch for key. The first submitter of a batch
// blocks for the quiet period, then runs the handler with every collected
// item and returns its result. Later submitters return immediately.
// Cancelling the first submitter's ctx discards the batch.
func (c *Collector[T]) Submit(ctx context.Context, key string, seq int64, item T) error {
	c.mu.Lock()
	if b, ok := c.batches[key]; ok {
		b.entries = append(b.entries, entry[T]{seq: seq, value: item})
		c.mu.Unlock()
		return nil
	}
	b := &pending[T]{
		entries:   []entry[T]{{seq: seq, value: item}},
		createdAt: time.Now(),
	}
	c.batches[key] = b
	c.mu.Unlock()

	timer := time.NewTimer(c.quiet)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.take(key, b)
		metrics.BatchesTotal.WithLabelValues("cancelled").Inc()
		return ctx.Err()
	case <-timer.C:
	}

	items := c.take(key, b)
	if total := weight(items); total > c.max {
		metrics.BatchesTotal.WithLabelValues("rejected").Inc()
		c.logger.Warn().Str("key", key).Int("items", len(items)).Int("units", total).Int("max", c.max).Msg("batch: capacity exceeded")
		return &CapacityError{Key: key, Count: total, Max: c.max}
	}

	metrics.BatchesTotal.WithLabelValues("flushed").Inc()
	metrics.BatchSize.Observe(float64(len(items)))
	c.logger.Debug().Str("key", key).Int("items", len(items)).Dur("waited", time.Since(b.createdAt)).Msg("batch: flushed")
	return c.handler(ctx, key, items)
}

func weight[T any](items []T) int {
	total := 0
	for _, it := range items {
		if w, ok := any(it).(Weighted); ok {
			total += w.Weight()
			continue
		}
		total++
	}
	return total
}

// take detaches b from the collector and returns its items sorted by
// sequence. Items appended after take belong to a new batch.
func (c *Collector[T]) take(key string, b *pending[T]) []T {
	c.mu.Lock()
	if c.batches[key] == b {
		delete(c.batches, key)
	}
	entries := b.entries
	b.entries = nil
	c.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

// Pending reports how many batches are waiting for their quiet period.
func (c *Collector[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}
