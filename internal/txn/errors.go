package txn

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict means a concurrent commit invalidated the read set.
	ErrConflict = errors.New("txn: read set invalidated by concurrent commit")

	// ErrNotFound is returned by point reads of absent records.
	ErrNotFound = errors.New("txn: record not found")

	// ErrExists is returned when creating a record whose ID is taken.
	ErrExists = errors.New("txn: record already exists")

	// ErrReadAfterWrite is returned when a body reads after buffering a write.
	ErrReadAfterWrite = errors.New("txn: reads must precede writes")

	// ErrSelfLink is returned for writes that would put a record in its own friends.
	ErrSelfLink = errors.New("txn: record cannot befriend itself")
)

// RetryExhaustedError is returned when every attempt allowed by the Policy
// ended in a conflict. errors.Is(err, ErrConflict) holds.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("txn: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is, or wraps, ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
