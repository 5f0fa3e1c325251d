// Package boltstore is an embedded key/value record store built on bbolt.
//
// It implements the same surface as package store (txn.Backend plus the
// external writer and the change outbox) for single-process deployments that
// do not want a SQLite dependency.
//
// # Layout
//
//	records    id                          -> msgpack recordValue
//	by_number  sortable(number) || id      -> empty
//	changes    big-endian(seq)             -> msgpack changeValue
//
// # Critical Patterns
//
// Commit runs validation and writes inside one bolt.Tx from db.Update. bbolt
// allows a single writer at a time, so validation and application are atomic
// with respect to every other commit.
//
// Values returned by bucket.Get are only valid for the life of the
// transaction; everything is decoded before the closure returns.
package boltstore
