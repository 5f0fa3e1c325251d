package reconcile

import "github.com/roach88/friendsync/internal/ir"

// Changed reports whether n moved the record's number. Creation events always
// pass. Notifications that fail this check open no transaction.
func Changed(n ir.Notification) bool {
	if n.IsCreate() {
		return true
	}
	return n.Before.Number != n.After.Number
}

// IsStale reports whether current has already moved past n.
//
// n is stale when the record now holds a different number, or when a
// transition with an event time at or after n's was already applied.
// The boundary is inclusive so that redelivering an applied notification is
// a no-op.
func IsStale(current ir.Record, n ir.Notification) bool {
	if current.Number != n.After.Number {
		return true
	}
	return !current.LastUpdated().Before(n.Timestamp)
}
