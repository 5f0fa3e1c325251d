// Package reconcile keeps friend sets in step with number changes.
//
// Two records are friends exactly when they share a number. Friends is a
// derived index owned by this package: external writers change Number, the
// store emits a notification per write, and Handle folds each notification
// into the index inside one optimistic transaction.
//
// # Critical Patterns
//
// Every notification goes through two filters:
//
//	Changed  cheap, outside any transaction; drops writes that left the
//	         number unchanged.
//	IsStale  authoritative, inside the transaction; drops transitions the
//	         record has already moved past.
//
// Stale and unchanged notifications are outcomes, not errors. A stale
// transaction still validates its read set on commit.
//
// Plan is pure. Given the same reads it returns the same writes, so the body
// is safe to re-run when the runner retries a conflict.
//
// Delivery is at-least-once and unordered. Handle never assumes it sees a
// record's transitions in order, or only once.
package reconcile
