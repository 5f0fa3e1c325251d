package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/friendsync/internal/ir"
)

// Defaults for Dispatcher options.
const (
	DefaultWorkers             = 4
	DefaultBatchSize           = 64
	DefaultPollInterval        = 200 * time.Millisecond
	DefaultMaxDeliveryAttempts = 10
)

// ErrStalled is returned by Drain when retries are unbounded and a full pass
// acknowledged nothing.
var ErrStalled = errors.New("trigger: no pending change could be delivered")

// result is the fate of one delivery attempt.
type result string

const (
	resultOK    result = "ok"
	resultRetry result = "retry"
	resultDead  result = "dead"
)

// Stats counts delivery results.
type Stats struct {
	Delivered int `json:"delivered"`
	Retried   int `json:"retried"`
	Dead      int `json:"dead"`
}

func (s *Stats) add(r result) {
	switch r {
	case resultOK:
		s.Delivered++
	case resultRetry:
		s.Retried++
	case resultDead:
		s.Dead++
	}
}

// Dispatcher moves changes from an Outbox to a Handler.
//
// Thread-safety model:
//   - Run: call from one goroutine; it owns the poller and the workers
//   - Drain: safe to call when Run is not running
type Dispatcher struct {
	outbox  Outbox
	handler Handler
	logger  *slog.Logger

	workers      int
	batchSize    int
	pollInterval time.Duration
	maxAttempts  int

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of concurrent handlers. Default: 4.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithBatchSize sets how many changes one poll fetches. Default: 64.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithPollInterval sets the delay between outbox polls. Default: 200ms.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithMaxDeliveryAttempts bounds failed attempts before a change is dropped
// as dead. 0 retries forever. Default: 10.
func WithMaxDeliveryAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxAttempts = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(outbox Outbox, handler Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		outbox:       outbox,
		handler:      handler,
		logger:       slog.Default(),
		workers:      DefaultWorkers,
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxDeliveryAttempts,
		inflight:     make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run polls the outbox and delivers changes until ctx is cancelled.
//
// Poll failures are logged and retried on the next tick. Changes still
// queued when ctx ends stay pending in the outbox and are delivered by the
// next Run.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting",
		"workers", d.workers,
		"batch_size", d.batchSize,
		"poll_interval", d.pollInterval,
	)

	q := newChangeQueue()
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx, q)
		}()
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.poll(ctx, q); err != nil && ctx.Err() == nil {
			d.logger.Warn("outbox poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping: context cancelled")
			q.Close()
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll enqueues pending changes that are not already in flight.
func (d *Dispatcher) poll(ctx context.Context, q *changeQueue) error {
	pending, err := d.outbox.Pending(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	for _, c := range pending {
		if !d.claim(c.Seq) {
			continue
		}
		if !q.Enqueue(c) {
			d.unclaim(c.Seq)
		}
	}
	return nil
}

func (d *Dispatcher) work(ctx context.Context, q *changeQueue) {
	for {
		c, ok := q.TryDequeue()
		if ok {
			d.deliver(ctx, c)
			d.unclaim(c.Seq)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case _, open := <-q.Wait():
			if !open {
				return
			}
		}
	}
}

// Drain delivers every pending change once per pass until the outbox is
// empty. With bounded attempts every failing change is eventually dropped as
// dead; with unbounded attempts a pass that settles nothing returns
// ErrStalled.
func (d *Dispatcher) Drain(ctx context.Context) (Stats, error) {
	var stats Stats
	for {
		pending, err := d.outbox.Pending(ctx, d.batchSize)
		if err != nil {
			return stats, fmt.Errorf("drain: %w", err)
		}
		if len(pending) == 0 {
			return stats, nil
		}

		var (
			mu   sync.Mutex
			pass Stats
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.workers)
		for _, c := range pending {
			c := c
			g.Go(func() error {
				r := d.deliver(gctx, c)
				mu.Lock()
				pass.add(r)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}

		stats.Delivered += pass.Delivered
		stats.Retried += pass.Retried
		stats.Dead += pass.Dead
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if d.maxAttempts <= 0 && pass.Delivered == 0 && pass.Dead == 0 {
			return stats, fmt.Errorf("drain: %d changes: %w", pass.Retried, ErrStalled)
		}
	}
}

// deliver runs the handler once and settles the change in the outbox.
func (d *Dispatcher) deliver(ctx context.Context, c ir.Change) result {
	n := c.Notification
	err := d.handler.Deliver(ctx, n)

	// Settle even if ctx was cancelled mid-delivery.
	settleCtx := context.WithoutCancel(ctx)

	var r result
	switch {
	case err == nil:
		r = resultOK
		if ackErr := d.outbox.Ack(settleCtx, c.Seq); ackErr != nil {
			d.logger.Warn("ack failed", "seq", c.Seq, "error", ackErr)
		}

	case d.maxAttempts > 0 && c.Attempts+1 >= d.maxAttempts:
		r = resultDead
		d.logger.Error("dropping undeliverable change",
			"seq", c.Seq,
			"record_id", n.RecordID,
			"event_id", n.EventID,
			"attempts", c.Attempts+1,
			"error", err,
		)
		if ackErr := d.outbox.Ack(settleCtx, c.Seq); ackErr != nil {
			d.logger.Warn("ack failed", "seq", c.Seq, "error", ackErr)
		}

	default:
		r = resultRetry
		d.logger.Warn("delivery failed, will retry",
			"seq", c.Seq,
			"record_id", n.RecordID,
			"event_id", n.EventID,
			"attempts", c.Attempts+1,
			"error", err,
		)
		if relErr := d.outbox.Release(settleCtx, c.Seq); relErr != nil {
			d.logger.Warn("release failed", "seq", c.Seq, "error", relErr)
		}
	}

	deliveriesTotal.WithLabelValues(string(r)).Inc()
	return r
}

func (d *Dispatcher) claim(seq int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[seq]; busy {
		return false
	}
	d.inflight[seq] = struct{}{}
	return true
}

func (d *Dispatcher) unclaim(seq int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, seq)
}
