// Package trigger delivers change notifications from a store's outbox.
//
// Every committed write to a record appends one change to the store's outbox.
// The Dispatcher polls the outbox and hands each change to a Handler on a
// pool of workers. Delivery is at-least-once and unordered:
//
//   - a change is acked only after its handler returns nil
//   - a failed change is released and picked up again on a later poll
//   - changes for different records, and for the same record, may be handled
//     concurrently and in any order
//
// Handlers must therefore be idempotent and tolerate reordering, which
// reconcile.Reconciler is.
//
// The Bridge and Subscriber carry notifications across processes over MQTT,
// encoded with msgpack (see Encode). The Bridge is itself a Handler, so the
// same Dispatcher can publish the outbox to a broker.
//
// # Critical Patterns
//
// A change is never handed to two workers at once by one Dispatcher; the
// in-flight set is keyed by outbox sequence number. Two Dispatchers over the
// same outbox may still deliver a change twice, which at-least-once allows.
//
// After max_delivery_attempts failures a change is acked as dead and logged
// at error level, so one poisoned change cannot stall the outbox forever.
package trigger
