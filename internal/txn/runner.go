package txn

import (
	"context"
	"log/slog"
	"time"
)

// Backend is a record store that supports optimistic commits.
type Backend interface {
	Reader

	// Commit validates rs and applies writes atomically. Returns an error
	// wrapping ErrConflict if validation fails; nothing is written in that case.
	Commit(ctx context.Context, rs *ReadSet, writes []Write) error
}

// Policy bounds conflict retries.
type Policy struct {
	// MaxAttempts is the total number of body executions; 0 means unbounded.
	MaxAttempts int

	// Backoff is multiplied by the attempt number before each retry.
	Backoff time.Duration
}

// DefaultPolicy mirrors the usual document-store default of five attempts.
var DefaultPolicy = Policy{MaxAttempts: 5, Backoff: 10 * time.Millisecond}

// Result describes a committed transaction.
type Result struct {
	Attempts int
	Writes   int
}

// Body is a transaction body. It must be safe to execute more than once.
type Body func(ctx context.Context, tx *Tx) error

// Runner executes bodies against a backend, retrying on conflict.
// Safe for concurrent use.
type Runner struct {
	backend Backend
	policy  Policy
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) RunnerOption {
	return func(r *Runner) {
		r.policy = p
	}
}

// WithLogger sets the logger used for conflict diagnostics.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner with DefaultPolicy.
func NewRunner(b Backend, opts ...RunnerOption) *Runner {
	r := &Runner{
		backend: b,
		policy:  DefaultPolicy,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes body and commits its writes.
//
// Conflicts re-run the body from scratch until Policy.MaxAttempts is reached,
// then return *RetryExhaustedError. Any other error from the body or the
// commit is returned unchanged and is not retried.
func (r *Runner) Run(ctx context.Context, body Body) (Result, error) {
	var lastErr error
	for attempt := 1; r.policy.MaxAttempts <= 0 || attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1}, err
		}

		tx := newTx(r.backend)
		if err := body(ctx, tx); err != nil {
			return Result{Attempts: attempt}, err
		}

		writes := tx.Writes()
		err := r.backend.Commit(ctx, tx.reads, writes)
		if err == nil {
			return Result{Attempts: attempt, Writes: len(writes)}, nil
		}
		if !IsConflict(err) {
			return Result{Attempts: attempt}, err
		}

		lastErr = err
		r.logger.Debug("transaction conflict, retrying",
			"attempt", attempt,
			"reads", tx.reads.Len(),
			"writes", len(writes),
			"error", err,
		)

		if err := sleep(ctx, r.policy.Backoff*time.Duration(attempt)); err != nil {
			return Result{Attempts: attempt}, err
		}
	}

	return Result{Attempts: r.policy.MaxAttempts}, &RetryExhaustedError{
		Attempts: r.policy.MaxAttempts,
		Err:      lastErr,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
