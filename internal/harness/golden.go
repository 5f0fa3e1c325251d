package harness

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/friendsync/internal/ir"
)

// Snapshot is the golden form of a scenario run: the trace plus the final
// records.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Records      []ir.Record
}

// toCanonicalMap converts s to the map form ir.MarshalCanonical accepts.
func (s Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"kind":   ev.Kind,
			"step":   ev.Step,
			"event":  ev.Event,
			"record": ev.RecordID,
			"after":  ev.After,
		}
		if ev.Before != nil {
			m["before"] = *ev.Before
		}
		if ev.Kind == KindDeliver {
			m["outcome"] = ev.Outcome
			m["writes"] = ev.Writes
		}
		trace[i] = m
	}

	records := make([]any, len(s.Records))
	for i, r := range s.Records {
		lastUpdated := "never"
		if !r.NumberLastUpdatedAt.IsZero() {
			lastUpdated = r.NumberLastUpdatedAt.UTC().Format(time.RFC3339Nano)
		}
		records[i] = map[string]any{
			"id":           r.ID,
			"number":       r.Number,
			"friends":      r.Friends,
			"last_updated": lastUpdated,
			"version":      r.Version,
		}
	}

	return map[string]any{
		"name":    s.ScenarioName,
		"trace":   trace,
		"records": records,
	}
}

// MarshalSnapshot renders the result of the named scenario as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Records:      result.Records,
	}.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
