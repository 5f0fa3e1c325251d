package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/reconcile"
)

// AssertionError is returned when an assertion fails.
// It carries the trace so failures can be debugged from the message alone.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", ev)
	}
	return buf.String()
}

// String renders ev on one line for failure messages.
func (ev TraceEvent) String() string {
	if ev.Kind == KindWrite {
		if ev.Before == nil {
			return fmt.Sprintf("[step %d] write #%d create %s = %d", ev.Step, ev.Event, ev.RecordID, ev.After)
		}
		return fmt.Sprintf("[step %d] write #%d set %s %d -> %d", ev.Step, ev.Event, ev.RecordID, *ev.Before, ev.After)
	}
	return fmt.Sprintf("[step %d] deliver #%d %s: %s (%d writes)", ev.Step, ev.Event, ev.RecordID, ev.Outcome, ev.Writes)
}

// assertFriends checks a record's friend set exactly.
func assertFriends(result *Result, a Assertion) error {
	rec, ok := result.Record(ir.RecordID(a.Record))
	if !ok {
		return missingRecord(result, a)
	}
	want := make([]ir.RecordID, len(a.Friends))
	for i, f := range a.Friends {
		want[i] = ir.RecordID(f)
	}
	want = ir.NormalizeIDs(want)
	if slices.Equal(want, rec.Friends) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFriends,
		Expected: fmt.Sprintf("%s.friends = %v", a.Record, want),
		Actual:   fmt.Sprintf("%v", rec.Friends),
		Trace:    result.Trace,
	}
}

// assertNumber checks a record's number.
func assertNumber(result *Result, a Assertion) error {
	rec, ok := result.Record(ir.RecordID(a.Record))
	if !ok {
		return missingRecord(result, a)
	}
	if int64(rec.Number) == *a.Number {
		return nil
	}
	return &AssertionError{
		Type:     AssertNumber,
		Expected: fmt.Sprintf("%s.number = %d", a.Record, *a.Number),
		Actual:   fmt.Sprintf("%d", rec.Number),
		Trace:    result.Trace,
	}
}

// assertDelivery checks the outcome and write count of one delivery.
func assertDelivery(result *Result, a Assertion) error {
	ev, ok := result.Delivery(a.Step, a.Event)
	if !ok {
		return &AssertionError{
			Type:     AssertDelivery,
			Expected: fmt.Sprintf("delivery of #%d in step %d", a.Event, a.Step),
			Actual:   "not found in trace",
			Trace:    result.Trace,
		}
	}

	var mismatches []string
	if a.Outcome != "" && ev.Outcome != a.Outcome {
		mismatches = append(mismatches, fmt.Sprintf("outcome %s, want %s", ev.Outcome, a.Outcome))
	}
	if a.Writes != nil && ev.Writes != *a.Writes {
		mismatches = append(mismatches, fmt.Sprintf("%d writes, want %d", ev.Writes, *a.Writes))
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertDelivery,
		Expected: fmt.Sprintf("delivery of #%d in step %d", a.Event, a.Step),
		Actual:   strings.Join(mismatches, "; "),
		Trace:    result.Trace,
	}
}

// assertConsistent runs the audit over the final state.
func assertConsistent(result *Result) error {
	violations := reconcile.Check(result.Records)
	if len(violations) == 0 {
		return nil
	}
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = v.String()
	}
	return &AssertionError{
		Type:     AssertConsistent,
		Expected: "no audit violations",
		Actual:   strings.Join(lines, ", "),
		Trace:    result.Trace,
	}
}

func missingRecord(result *Result, a Assertion) error {
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("record %s", a.Record),
		Actual:   "record does not exist",
		Trace:    result.Trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFriends:
			err = assertFriends(result, assertion)
		case AssertNumber:
			err = assertNumber(result, assertion)
		case AssertDelivery:
			err = assertDelivery(result, assertion)
		case AssertConsistent:
			err = assertConsistent(result)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
