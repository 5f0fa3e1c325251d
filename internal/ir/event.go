package ir

import "github.com/google/uuid"

// EventIDGenerator produces notification event IDs.
// Tests substitute testutil.SequenceGenerator.
type EventIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 event IDs.
//
// Sortability makes log lines for one record easy to follow.
// Safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
