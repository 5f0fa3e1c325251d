package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

// Status classifies how a notification was handled.
type Status int

const (
	// StatusUnchanged means the notification did not move the number.
	StatusUnchanged Status = iota
	// StatusStale means the record had already moved past the notification.
	StatusStale
	// StatusApplied means the transition's writes were committed.
	StatusApplied
)

func (s Status) String() string {
	switch s {
	case StatusUnchanged:
		return "unchanged"
	case StatusStale:
		return "stale"
	case StatusApplied:
		return "applied"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome describes a handled notification.
type Outcome struct {
	Status Status

	// Attempts is the number of transaction attempts; 0 when Unchanged.
	Attempts int

	// Writes is the number of committed writes.
	Writes int
}

// Reconciler applies number transitions to the friendship index.
// Safe for concurrent use.
type Reconciler struct {
	runner *txn.Runner
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Reconciler.
type Option func(*config)

type config struct {
	policy txn.Policy
	logger *slog.Logger
}

// WithPolicy sets the conflict retry policy. Default: txn.DefaultPolicy.
func WithPolicy(p txn.Policy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New creates a Reconciler over an initialized backend.
// The caller owns the backend's lifecycle.
func New(backend txn.Backend, opts ...Option) *Reconciler {
	cfg := config{
		policy: txn.DefaultPolicy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reconciler{
		runner: txn.NewRunner(backend, txn.WithPolicy(cfg.policy), txn.WithLogger(cfg.logger)),
		logger: cfg.logger,
		tracer: otel.Tracer("friendsync"),
	}
}

// Handle folds one notification into the friendship index.
//
// Stale and unchanged notifications succeed with zero writes. Conflicts are
// retried per policy; exhaustion and store failures are returned so that the
// delivery system can redeliver.
func (r *Reconciler) Handle(ctx context.Context, n ir.Notification) (Outcome, error) {
	if !Changed(n) {
		reconcileTotal.WithLabelValues(StatusUnchanged.String()).Inc()
		return Outcome{Status: StatusUnchanged}, nil
	}

	ctx, span := r.tracer.Start(ctx, "reconcile.Handle",
		trace.WithAttributes(
			attribute.String("record_id", string(n.RecordID)),
			attribute.String("event_id", n.EventID),
		),
	)
	defer span.End()

	var status Status
	res, err := r.runner.Run(ctx, func(ctx context.Context, tx *txn.Tx) error {
		var err error
		status, err = r.body(ctx, tx, n)
		return err
	})
	reconcileAttempts.Observe(float64(res.Attempts))
	if err != nil {
		reconcileTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{Attempts: res.Attempts}, fmt.Errorf("reconcile %s: %w", n.RecordID, err)
	}

	out := Outcome{Status: status, Attempts: res.Attempts, Writes: res.Writes}
	reconcileTotal.WithLabelValues(status.String()).Inc()
	reconcileWritesTotal.Add(float64(res.Writes))
	span.SetAttributes(
		attribute.String("outcome", status.String()),
		attribute.Int("attempts", res.Attempts),
		attribute.Int("writes", res.Writes),
	)

	switch status {
	case StatusStale:
		r.logger.Info("skipped stale notification",
			"record_id", n.RecordID,
			"event_id", n.EventID,
			"after", n.After.Number,
		)
	case StatusApplied:
		r.logger.Info("applied number transition",
			"record_id", n.RecordID,
			"event_id", n.EventID,
			"after", n.After.Number,
			"attempts", res.Attempts,
			"writes", res.Writes,
		)
	}
	return out, nil
}

// Deliver adapts Handle to the delivery handler shape, discarding the outcome.
func (r *Reconciler) Deliver(ctx context.Context, n ir.Notification) error {
	_, err := r.Handle(ctx, n)
	return err
}

// body is one transaction attempt. It must be safe to re-run.
func (r *Reconciler) body(ctx context.Context, tx *txn.Tx, n ir.Notification) (Status, error) {
	current, err := tx.Get(ctx, n.RecordID)
	if err != nil {
		return 0, err
	}
	if IsStale(current, n) {
		return StatusStale, nil
	}

	in := Input{RecordID: n.RecordID, Timestamp: n.Timestamp}
	g, gctx := errgroup.WithContext(ctx)
	if !n.IsCreate() {
		g.Go(func() error {
			var err error
			in.OldGroup, err = tx.FindByNumber(gctx, n.Before.Number)
			return err
		})
	}
	g.Go(func() error {
		var err error
		in.NewGroup, err = tx.FindByNumber(gctx, n.After.Number)
		return err
	})
	g.Go(func() error {
		var err error
		in.Linked, err = tx.FindByFriend(gctx, n.RecordID)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	tx.Apply(Plan(in)...)
	return StatusApplied, nil
}
