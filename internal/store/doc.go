// Package store provides the SQLite-backed record store for friendsync.
//
// The store holds three tables:
//   - records: one row per user (number, last accepted transition, version)
//   - friendships: the derived friend sets, one row per directed link
//   - changes: the outbox of change notifications, one row per external write
//
// # Critical Patterns
//
// Atomic outbox: CreateRecord and SetNumber write the record and its change
// row in one SQL transaction, so every committed write yields exactly one
// notification and no notification describes an uncommitted write.
//
// Optimistic commit: Commit re-validates a txn.ReadSet inside the write
// transaction before applying any write. Versions are bumped once per commit
// for each record whose state actually changed.
//
// Set primitives: AddFriend is INSERT OR IGNORE and RemoveFriend is DELETE on
// the friendships primary key, so concurrent commits targeting the same
// record for different peers commute.
//
// Monotonic event time: per record, each change's event time is strictly
// greater than the previous one, even if the wall clock stalls or steps back.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Take the write lock at BEGIN so commits from other
//     processes queue on busy_timeout instead of failing mid-transaction
package store
