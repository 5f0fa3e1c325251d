package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/testutil"
)

func intPtr(n int) *int {
	return &n
}

func int64Ptr(n int64) *int64 {
	return &n
}

func create(id string, n int64) Step {
	return Step{Create: &RecordArgs{ID: id, Number: n}}
}

func set(id string, n int64) Step {
	return Step{Set: &RecordArgs{ID: id, Number: n}}
}

func TestRun_ConcurrentConvergentScenario(t *testing.T) {
	// A and B share 1; A moves to 2 while C is created with 2.
	scenario := &Scenario{
		Name:        "convergent",
		Description: "A moves to 2 as C is created at 2",
		Steps: []Step{
			create("A", 1),
			create("B", 1),
			{Settle: true},
			set("A", 2),
			create("C", 2),
			{Deliver: 4},
			{Deliver: 3},
			{Settle: true},
		},
		Assertions: []Assertion{
			{Type: AssertFriends, Record: "A", Friends: []string{"C"}},
			{Type: AssertFriends, Record: "C", Friends: []string{"A"}},
			{Type: AssertFriends, Record: "B"},
			{Type: AssertConsistent},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WriteTimestampsFollowSteps(t *testing.T) {
	scenario := &Scenario{
		Name:        "clock",
		Description: "each write step is one second after the previous",
		Steps:       []Step{create("a", 1), {Settle: true}, set("a", 2), {Settle: true}},
		Assertions:  []Assertion{{Type: AssertConsistent}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	rec, ok := result.Record("a")
	require.True(t, ok)
	assert.Equal(t, testutil.Epoch.Add(time.Second), rec.NumberLastUpdatedAt.UTC(), "settling does not move the clock")
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong",
		Description: "expectations that do not hold",
		Steps:       []Step{create("a", 1), create("b", 1)},
		Assertions: []Assertion{
			{Type: AssertConsistent},
			{Type: AssertFriends, Record: "a", Friends: []string{"b"}},
			{Type: AssertNumber, Record: "a", Number: int64Ptr(9)},
			{Type: AssertNumber, Record: "ghost", Number: int64Ptr(1)},
			{Type: AssertDelivery, Step: 1, Event: 1, Outcome: "applied"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "missing_link: a -> b")
	assert.Contains(t, result.Errors[1], "a.friends = [b]")
	assert.Contains(t, result.Errors[2], "a.number = 9")
	assert.Contains(t, result.Errors[3], "record does not exist")
	assert.Contains(t, result.Errors[4], "not found in trace")
	assert.Contains(t, result.Errors[0], "[step 2] write #2 create b = 1", "failures carry the trace")
}

func TestRun_DeliveryMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "wrong outcome and write count",
		Steps:       []Step{create("a", 1), {Deliver: 1}},
		Assertions: []Assertion{
			{Type: AssertDelivery, Step: 2, Event: 1, Outcome: "stale", Writes: intPtr(5)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "outcome applied, want stale")
	assert.Contains(t, result.Errors[0], "1 writes, want 5")
}

func TestRun_StoreErrorsAbort(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		want  string
	}{
		{"set unknown record", []Step{set("ghost", 1)}, "step 1 (set)"},
		{"duplicate create", []Step{create("a", 1), create("a", 2)}, "step 2 (create)"},
		{"reserved id", []Step{create("a/b", 1)}, "reserved character"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(&Scenario{
				Name:        tt.name,
				Description: "d",
				Steps:       tt.steps,
				Assertions:  []Assertion{{Type: AssertConsistent}},
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResult_Lookups(t *testing.T) {
	r := NewResult()
	r.AddWriteTrace(1, 1, ir.Notification{RecordID: "a", After: ir.Snapshot{Number: 1}})
	r.AddDeliveryTrace(2, 1, "a", 1, "applied", 1)
	r.Records = []ir.Record{{ID: "a", Number: 1}}

	ev, ok := r.Delivery(2, 1)
	require.True(t, ok)
	assert.Equal(t, "applied", ev.Outcome)
	_, ok = r.Delivery(1, 1)
	assert.False(t, ok, "writes are not deliveries")

	_, ok = r.Record("a")
	assert.True(t, ok)
	_, ok = r.Record("b")
	assert.False(t, ok)

	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
}

func TestTraceEvent_String(t *testing.T) {
	before := ir.Number(5)
	tests := []struct {
		ev   TraceEvent
		want string
	}{
		{TraceEvent{Kind: KindWrite, Step: 1, Event: 1, RecordID: "x", After: 5}, "[step 1] write #1 create x = 5"},
		{TraceEvent{Kind: KindWrite, Step: 3, Event: 2, RecordID: "x", Before: &before, After: 7}, "[step 3] write #2 set x 5 -> 7"},
		{TraceEvent{Kind: KindDeliver, Step: 4, Event: 2, RecordID: "x", Outcome: "stale"}, "[step 4] deliver #2 x: stale (0 writes)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ev.String())
	}
}

func TestRunDir(t *testing.T) {
	result, err := RunDir(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Positive(t, result.TotalScenarios)
	assert.Equal(t, result.TotalScenarios, result.Passed, "failures: %+v", result.Failures)
	assert.Zero(t, result.Failed)
}

func TestRunDir_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: bad\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yml"), []byte(
		"name: failing\ndescription: d\nsteps: [{create: {id: a, number: 1}}, {create: {id: b, number: 1}}]\nassertions: [{type: consistent}]\n"),
		0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	result, err := RunDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalScenarios)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
	assert.Contains(t, result.Failures[1].Error, "scenario assertions failed")
}

func TestRunDir_MissingDir(t *testing.T) {
	_, err := RunDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}
