package harness

import (
	"github.com/roach88/friendsync/internal/ir"
)

// Trace event kinds.
const (
	KindWrite   = "write"
	KindDeliver = "deliver"
)

// OutcomeError is the trace outcome of a delivery whose handler failed.
const OutcomeError = "error"

// TraceEvent is one write or delivery, in execution order.
type TraceEvent struct {
	Kind string `json:"kind"` // "write" or "deliver"

	// Step is the 1-based scenario step that produced the event.
	Step int `json:"step"`

	// Event is the 1-based index of the notification written or delivered.
	Event int `json:"event"`

	RecordID ir.RecordID `json:"record"`

	// Before and After are set on writes; Before is nil for creations.
	Before *ir.Number `json:"before,omitempty"`
	After  ir.Number  `json:"after"`

	// Outcome and Writes are set on deliveries.
	Outcome string `json:"outcome,omitempty"`
	Writes  int    `json:"writes"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every write and delivery in order.
	Trace []TraceEvent `json:"trace"`

	// Records is the final store state, sorted by ID.
	Records []ir.Record `json:"records"`

	// Errors holds failed assertion messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddWriteTrace records an external write.
func (r *Result) AddWriteTrace(step, event int, n ir.Notification) {
	ev := TraceEvent{
		Kind:     KindWrite,
		Step:     step,
		Event:    event,
		RecordID: n.RecordID,
		After:    n.After.Number,
	}
	if n.Before != nil {
		before := n.Before.Number
		ev.Before = &before
	}
	r.Trace = append(r.Trace, ev)
}

// AddDeliveryTrace records one reconciliation.
func (r *Result) AddDeliveryTrace(step, event int, id ir.RecordID, after ir.Number, outcome string, writes int) {
	r.Trace = append(r.Trace, TraceEvent{
		Kind:     KindDeliver,
		Step:     step,
		Event:    event,
		RecordID: id,
		After:    after,
		Outcome:  outcome,
		Writes:   writes,
	})
}

// Delivery returns the delivery of event during step, if any.
func (r *Result) Delivery(step, event int) (TraceEvent, bool) {
	for _, ev := range r.Trace {
		if ev.Kind == KindDeliver && ev.Step == step && ev.Event == event {
			return ev, true
		}
	}
	return TraceEvent{}, false
}

// Record returns the final state of id, if it exists.
func (r *Result) Record(id ir.RecordID) (ir.Record, bool) {
	for _, rec := range r.Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return ir.Record{}, false
}
