package cli

import (
	"context"
	"fmt"

	"github.com/roach88/friendsync/internal/boltstore"
	"github.com/roach88/friendsync/internal/config"
	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/reconcile"
	"github.com/roach88/friendsync/internal/store"
	"github.com/roach88/friendsync/internal/trigger"
	"github.com/roach88/friendsync/internal/txn"
)

// recordStore is what the commands need from either backend.
type recordStore interface {
	txn.Backend
	trigger.Outbox

	CreateRecord(ctx context.Context, id ir.RecordID, n ir.Number) (ir.Notification, error)
	SetNumber(ctx context.Context, id ir.RecordID, n ir.Number) (ir.Notification, error)
	ListRecords(ctx context.Context) ([]ir.Record, error)
	PendingCount(ctx context.Context) (int, error)
	Close() error
}

var (
	_ recordStore = (*store.Store)(nil)
	_ recordStore = (*boltstore.Store)(nil)
)

// openStore opens the backend named by cfg.
func openStore(cfg config.Store) (recordStore, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		st, err := store.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendBolt:
		st, err := boltstore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// withStore opens the configured store, runs fn and closes the store.
func (o *RootOptions) withStore(fn func(st recordStore) error) error {
	st, err := openStore(o.Config.Store)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			o.Logger.Error("error closing store", "error", closeErr)
		}
	}()
	return fn(st)
}

// newReconciler builds a reconciler over st using the configured retry policy.
func (o *RootOptions) newReconciler(st txn.Backend) *reconcile.Reconciler {
	return reconcile.New(st,
		reconcile.WithPolicy(txn.Policy{
			MaxAttempts: o.Config.Txn.MaxAttempts,
			Backoff:     o.Config.Txn.Backoff.Std(),
		}),
		reconcile.WithLogger(o.Logger),
	)
}

// newDispatcher builds an outbox dispatcher delivering to h.
func (o *RootOptions) newDispatcher(outbox trigger.Outbox, h trigger.Handler) *trigger.Dispatcher {
	d := o.Config.Dispatch
	return trigger.NewDispatcher(outbox, h,
		trigger.WithWorkers(d.Workers),
		trigger.WithBatchSize(d.BatchSize),
		trigger.WithPollInterval(d.PollInterval.Std()),
		trigger.WithMaxDeliveryAttempts(d.MaxDeliveryAttempts),
		trigger.WithLogger(o.Logger),
	)
}
