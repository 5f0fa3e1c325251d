package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/reconcile"
	"github.com/roach88/friendsync/internal/store"
	"github.com/roach88/friendsync/internal/testutil"
	"github.com/roach88/friendsync/internal/trigger"
	"github.com/roach88/friendsync/internal/txn"
)

// writeInterval is how far the store clock moves after each write step.
const writeInterval = time.Second

// Harness executes one scenario. It is not safe for concurrent use; settle
// drains with a single worker so deliveries happen in outbox order.
type Harness struct {
	store      *store.Store
	reconciler *reconcile.Reconciler
	dispatcher *trigger.Dispatcher
	clock      *testutil.DeterministicClock
	logger     *slog.Logger

	result *Result
	notes  []ir.Notification // by event index - 1
	events map[string]int    // event ID -> event index
	step   int               // current step, 1-based
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The returned error is
// for setup and store failures; failed assertions are reported in
// Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewSteppingClock(testutil.Epoch, 0)
	st, err := store.Open(":memory:",
		store.WithClock(clock.Now),
		store.WithEventIDs(testutil.NewSequenceGenerator("evt")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store:  st,
		clock:  clock,
		logger: logger,
		result: NewResult(),
		events: make(map[string]int),
	}
	h.reconciler = reconcile.New(st,
		reconcile.WithPolicy(txn.DefaultPolicy),
		reconcile.WithLogger(logger),
	)
	h.dispatcher = trigger.NewDispatcher(st, trigger.HandlerFunc(h.deliverFromOutbox),
		trigger.WithWorkers(1),
		trigger.WithMaxDeliveryAttempts(1),
		trigger.WithLogger(logger),
	)

	ctx := context.Background()
	for i, step := range scenario.Steps {
		h.step = i + 1
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", h.step, step.kind(), err)
		}
	}

	recs, err := st.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	h.result.Records = recs

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.kind() {
	case StepCreate:
		return h.write(ctx, step.Create, h.store.CreateRecord)
	case StepSet:
		return h.write(ctx, step.Set, h.store.SetNumber)
	case StepDeliver:
		if step.Deliver < 1 || step.Deliver > len(h.notes) {
			return fmt.Errorf("no notification %d", step.Deliver)
		}
		// failures are traced as an error outcome
		_ = h.deliver(ctx, step.Deliver, h.notes[step.Deliver-1])
		return nil
	case StepSettle:
		stats, err := h.dispatcher.Drain(ctx)
		if err != nil {
			return err
		}
		h.logger.Info("settled", "step", h.step, "delivered", stats.Delivered, "dead", stats.Dead)
		return nil
	default:
		return fmt.Errorf("step must set exactly one action")
	}
}

type writeFunc func(ctx context.Context, id ir.RecordID, n ir.Number) (ir.Notification, error)

// write performs an external write, records its notification and moves the
// clock on.
func (h *Harness) write(ctx context.Context, args *RecordArgs, fn writeFunc) error {
	id, err := ir.ParseRecordID(args.ID)
	if err != nil {
		return err
	}
	n, err := fn(ctx, id, ir.Number(args.Number))
	if err != nil {
		return err
	}
	h.notes = append(h.notes, n)
	event := len(h.notes)
	h.events[n.EventID] = event
	h.result.AddWriteTrace(h.step, event, n)
	h.clock.Advance(writeInterval)
	return nil
}

// deliver reconciles one notification and traces the outcome.
func (h *Harness) deliver(ctx context.Context, event int, n ir.Notification) error {
	out, err := h.reconciler.Handle(ctx, n)
	outcome := out.Status.String()
	if err != nil {
		outcome = OutcomeError
		h.logger.Warn("delivery failed", "step", h.step, "event", event, "error", err)
	}
	h.result.AddDeliveryTrace(h.step, event, n.RecordID, n.After.Number, outcome, out.Writes)
	return err
}

func (h *Harness) deliverFromOutbox(ctx context.Context, n ir.Notification) error {
	event, ok := h.events[n.EventID]
	if !ok {
		return fmt.Errorf("outbox returned unknown event %s", n.EventID)
	}
	return h.deliver(ctx, event, n)
}
