package ir

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// RecordID identifies a user record. Stable for the record's lifetime.
type RecordID string

// ParseRecordID validates and NFC-normalizes an externally supplied ID.
func ParseRecordID(s string) (RecordID, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("record id must not be empty")
	}
	if strings.ContainsAny(s, "/+#") {
		// reserved by the MQTT topic layout
		return "", fmt.Errorf("record id %q contains a reserved character", s)
	}
	return RecordID(s), nil
}

// Number is the watched field. Only equality matters.
type Number int64

// NeverUpdated is the instant a record is treated as last updated at when its
// NumberLastUpdatedAt has never been set: 1ms after the Unix epoch.
var NeverUpdated = time.UnixMilli(1).UTC()

// Record is one user's persisted state.
type Record struct {
	ID     RecordID `json:"id"`
	Number Number   `json:"number"`

	// NumberLastUpdatedAt is the event time of the last accepted transition.
	// Written only by the reconciler.
	NumberLastUpdatedAt time.Time `json:"number_last_updated_at,omitempty"`

	// Friends holds the IDs sharing Number, sorted. Written only by the reconciler.
	Friends []RecordID `json:"friends"`

	// Version is bumped by every committed write touching the record.
	Version int64 `json:"version"`
}

// LastUpdated returns NumberLastUpdatedAt, substituting NeverUpdated for zero.
func (r Record) LastUpdated() time.Time {
	if r.NumberLastUpdatedAt.IsZero() {
		return NeverUpdated
	}
	return r.NumberLastUpdatedAt
}

// HasFriend reports whether id is in r.Friends.
func (r Record) HasFriend(id RecordID) bool {
	return ContainsID(r.Friends, id)
}

// Snapshot is the watched part of a record at one side of a change.
type Snapshot struct {
	Number Number `msgpack:"number" json:"number"`
}

// Notification describes one physical write to a record.
//
// Before is nil when the write created the record. Delivery is at-least-once
// and unordered; EventID is for logs only.
type Notification struct {
	RecordID  RecordID  `msgpack:"record_id" json:"record_id"`
	Before    *Snapshot `msgpack:"before" json:"before,omitempty"`
	After     Snapshot  `msgpack:"after" json:"after"`
	Timestamp time.Time `msgpack:"timestamp" json:"timestamp"`
	EventID   string    `msgpack:"event_id" json:"event_id"`
}

// IsCreate reports whether the notification describes a record creation.
func (n Notification) IsCreate() bool {
	return n.Before == nil
}

// Change is a notification waiting in a store's outbox.
type Change struct {
	Seq          int64
	Notification Notification
	Attempts     int
}
