package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/friendsync/internal/ir"
)

func TestChanged(t *testing.T) {
	tests := []struct {
		name string
		n    ir.Notification
		want bool
	}{
		{"creation", ir.Notification{After: ir.Snapshot{Number: 1}}, true},
		{"moved", ir.Notification{Before: &ir.Snapshot{Number: 1}, After: ir.Snapshot{Number: 2}}, true},
		{"other field", ir.Notification{Before: &ir.Snapshot{Number: 3}, After: ir.Snapshot{Number: 3}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Changed(tt.n))
		})
	}
}

func TestIsStale(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	note := ir.Notification{
		RecordID:  "a",
		Before:    &ir.Snapshot{Number: 1},
		After:     ir.Snapshot{Number: 2},
		Timestamp: t0,
	}

	tests := []struct {
		name    string
		current ir.Record
		want    bool
	}{
		{"never updated", ir.Record{ID: "a", Number: 2}, false},
		{"earlier transition applied", ir.Record{ID: "a", Number: 2, NumberLastUpdatedAt: t0.Add(-time.Second)}, false},
		{"same transition applied", ir.Record{ID: "a", Number: 2, NumberLastUpdatedAt: t0}, true},
		{"later transition applied", ir.Record{ID: "a", Number: 2, NumberLastUpdatedAt: t0.Add(time.Nanosecond)}, true},
		{"record moved on", ir.Record{ID: "a", Number: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStale(tt.current, note))
		})
	}
}

func TestIsStale_SentinelForNeverUpdated(t *testing.T) {
	rec := ir.Record{ID: "a", Number: 1}

	atSentinel := ir.Notification{RecordID: "a", After: ir.Snapshot{Number: 1}, Timestamp: ir.NeverUpdated}
	assert.True(t, IsStale(rec, atSentinel))

	atEpoch := ir.Notification{RecordID: "a", After: ir.Snapshot{Number: 1}, Timestamp: time.Unix(0, 0)}
	assert.True(t, IsStale(rec, atEpoch))

	after := ir.Notification{RecordID: "a", After: ir.Snapshot{Number: 1}, Timestamp: ir.NeverUpdated.Add(time.Millisecond)}
	assert.False(t, IsStale(rec, after))
}
