package store

import (
	"database/sql"
	"time"
)

// Times are stored as INTEGER unix nanoseconds in UTC.

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// nullableNanos maps the zero time to NULL.
func nullableNanos(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(t), Valid: true}
}

// timeFromNull maps NULL to the zero time.
func timeFromNull(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromNanos(n.Int64)
}

// nextEventTime returns now, or last+1ns if the clock has not moved past last.
func nextEventTime(now, last time.Time) time.Time {
	now = now.UTC()
	if !now.After(last) {
		return last.Add(time.Nanosecond)
	}
	return now
}
