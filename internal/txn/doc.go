// Package txn implements optimistic transactions over a record Backend.
//
// A transaction body reads through a Tx, which remembers the version of every
// record it saw and the exact membership of every scan, and buffers writes.
// Commit hands the read set and write set to the Backend, which re-validates
// the reads inside its own exclusive write transaction and applies the writes
// only if nothing changed. A mismatch is ErrConflict, and Runner re-executes
// the whole body.
//
// Bodies must therefore be safe to re-run: they compute writes from what they
// read and have no other side effects.
//
// # Write semantics
//
//   - Update replaces NumberLastUpdatedAt and Friends
//   - AddFriend is set-union on Friends (no-op when present)
//   - RemoveFriend is set-difference on Friends (no-op when absent)
//
// Version bumps happen only for writes that change the record, so no-op
// set operations do not invalidate concurrent readers.
package txn
