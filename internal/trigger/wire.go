package trigger

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/friendsync/internal/ir"
)

// Encode serializes a notification as msgpack.
func Encode(n ir.Notification) ([]byte, error) {
	b, err := msgpack.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification %s: %w", n.EventID, err)
	}
	return b, nil
}

// Decode parses a msgpack notification. Timestamps are returned in UTC.
func Decode(b []byte) (ir.Notification, error) {
	var n ir.Notification
	if err := msgpack.Unmarshal(b, &n); err != nil {
		return ir.Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.RecordID == "" {
		return ir.Notification{}, errors.New("decode notification: missing record_id")
	}
	if n.Timestamp.IsZero() {
		return ir.Notification{}, fmt.Errorf("decode notification %s: missing timestamp", n.RecordID)
	}
	n.Timestamp = n.Timestamp.UTC()
	return n, nil
}
