// Package harness runs friendship scenarios against a real store and
// reconciler and checks the results.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: number_change_moves_friendship
//	description: "What this scenario validates"
//	steps:
//	  - create: { id: x, number: 5 }
//	  - set: { id: x, number: 7 }
//	  - settle: true
//	  - deliver: 2
//	assertions:
//	  - type: friends
//	    record: x
//	    friends: [z]
//	  - type: delivery
//	    step: 4
//	    event: 2
//	    outcome: stale
//	    writes: 0
//	  - type: consistent
//
// # Steps
//
//   - create: an external write creating a record
//   - set: an external write changing a record's number
//   - deliver: hands notification N (1-based, in write order) straight to the
//     reconciler, bypassing the outbox; used for duplicates and reordering
//   - settle: drains the outbox in order with one worker
//
// Settling after manual deliveries redelivers those notifications too, as an
// at-least-once transport would.
//
// # Assertion Types
//
//   - friends: a record's friend set equals the list exactly
//   - number: a record's number
//   - delivery: outcome and/or write count of one delivery in the trace
//   - consistent: the settled store has no audit violations
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite store. The store clock
// is frozen at testutil.Epoch and moves forward one second after each write
// step, and event IDs come from testutil.SequenceGenerator, so traces and
// final state are byte-stable for golden comparison.
package harness
