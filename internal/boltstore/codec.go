package boltstore

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/friendsync/internal/ir"
)

var (
	bucketRecords  = []byte("records")
	bucketByNumber = []byte("by_number")
	bucketChanges  = []byte("changes")
)

// recordValue is the stored form of ir.Record. Times are unix nanoseconds,
// 0 meaning unset.
type recordValue struct {
	Number        int64    `msgpack:"n"`
	LastUpdatedAt int64    `msgpack:"lu"`
	WrittenAt     int64    `msgpack:"wa"`
	Friends       []string `msgpack:"f"`
	Version       int64    `msgpack:"v"`
}

// changeValue is the stored form of one outbox entry.
type changeValue struct {
	EventID   string `msgpack:"e"`
	RecordID  string `msgpack:"r"`
	HasBefore bool   `msgpack:"hb"`
	Before    int64  `msgpack:"b"`
	After     int64  `msgpack:"a"`
	EventTime int64  `msgpack:"t"`
	Attempts  int    `msgpack:"x"`
	Acked     bool   `msgpack:"k"`
}

func decodeRecord(id []byte, raw []byte) (ir.Record, recordValue, error) {
	var v recordValue
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return ir.Record{}, v, fmt.Errorf("decode record %s: %w", id, err)
	}
	friends := make([]ir.RecordID, len(v.Friends))
	for i, f := range v.Friends {
		friends[i] = ir.RecordID(f)
	}
	rec := ir.Record{
		ID:                  ir.RecordID(id),
		Number:              ir.Number(v.Number),
		NumberLastUpdatedAt: fromNanos(v.LastUpdatedAt),
		Friends:             ir.NormalizeIDs(friends),
		Version:             v.Version,
	}
	return rec, v, nil
}

func encodeRecord(rec ir.Record, writtenAt int64) ([]byte, error) {
	friends := make([]string, len(rec.Friends))
	for i, f := range rec.Friends {
		friends[i] = string(f)
	}
	return msgpack.Marshal(recordValue{
		Number:        int64(rec.Number),
		LastUpdatedAt: toNanos(rec.NumberLastUpdatedAt),
		WrittenAt:     writtenAt,
		Friends:       friends,
		Version:       rec.Version,
	})
}

func (c changeValue) change(seq uint64) ir.Change {
	n := ir.Notification{
		RecordID:  ir.RecordID(c.RecordID),
		After:     ir.Snapshot{Number: ir.Number(c.After)},
		Timestamp: fromNanos(c.EventTime),
		EventID:   c.EventID,
	}
	if c.HasBefore {
		n.Before = &ir.Snapshot{Number: ir.Number(c.Before)}
	}
	return ir.Change{Seq: int64(seq), Notification: n, Attempts: c.Attempts}
}

// numberKey encodes n so that byte order matches numeric order.
func numberKey(n ir.Number, id ir.RecordID) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(n)^(1<<63))
	return append(key, id...)
}

func numberPrefix(n ir.Number) []byte {
	return numberKey(n, "")
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// nextEventTime returns now, or last+1ns if the clock has not moved past last.
func nextEventTime(now, last time.Time) time.Time {
	now = now.UTC()
	if !now.After(last) {
		return last.Add(time.Nanosecond)
	}
	return now
}
