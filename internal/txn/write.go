package txn

import (
	"fmt"
	"time"

	"github.com/roach88/friendsync/internal/ir"
)

// WriteOp distinguishes write kinds.
type WriteOp int

const (
	// OpUpdate replaces NumberLastUpdatedAt and Friends.
	OpUpdate WriteOp = iota + 1
	// OpAddFriend adds FriendID to Friends.
	OpAddFriend
	// OpRemoveFriend removes FriendID from Friends.
	OpRemoveFriend
)

func (op WriteOp) String() string {
	switch op {
	case OpUpdate:
		return "update"
	case OpAddFriend:
		return "add_friend"
	case OpRemoveFriend:
		return "remove_friend"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// Write is one buffered mutation of one record.
type Write struct {
	Op       WriteOp
	RecordID ir.RecordID

	// FriendID is the peer for OpAddFriend / OpRemoveFriend.
	FriendID ir.RecordID

	// NumberLastUpdatedAt and Friends are set by OpUpdate.
	NumberLastUpdatedAt time.Time
	Friends             []ir.RecordID
}

// Update builds an OpUpdate write. friends is normalized.
func Update(id ir.RecordID, lastUpdated time.Time, friends []ir.RecordID) Write {
	return Write{
		Op:                  OpUpdate,
		RecordID:            id,
		NumberLastUpdatedAt: lastUpdated,
		Friends:             ir.NormalizeIDs(friends),
	}
}

// AddFriend builds an OpAddFriend write.
func AddFriend(id, friend ir.RecordID) Write {
	return Write{Op: OpAddFriend, RecordID: id, FriendID: friend}
}

// RemoveFriend builds an OpRemoveFriend write.
func RemoveFriend(id, friend ir.RecordID) Write {
	return Write{Op: OpRemoveFriend, RecordID: id, FriendID: friend}
}

// ApplyWrite applies w to rec in memory and reports whether rec changed.
// rec.Version is not touched; backends bump it when changed is true.
func ApplyWrite(rec *ir.Record, w Write) (changed bool, err error) {
	if rec.ID != w.RecordID {
		return false, fmt.Errorf("apply %s: write for %s applied to %s", w.Op, w.RecordID, rec.ID)
	}
	friends := ir.NormalizeIDs(rec.Friends)

	switch w.Op {
	case OpUpdate:
		next := ir.NormalizeIDs(w.Friends)
		if ir.ContainsID(next, rec.ID) {
			return false, fmt.Errorf("apply %s %s: %w", w.Op, rec.ID, ErrSelfLink)
		}
		changed = !rec.NumberLastUpdatedAt.Equal(w.NumberLastUpdatedAt) || !equalIDs(friends, next)
		rec.NumberLastUpdatedAt = w.NumberLastUpdatedAt
		rec.Friends = next
		return changed, nil

	case OpAddFriend:
		if w.FriendID == rec.ID {
			return false, fmt.Errorf("apply %s %s: %w", w.Op, rec.ID, ErrSelfLink)
		}
		if ir.ContainsID(friends, w.FriendID) {
			return false, nil
		}
		rec.Friends = ir.UnionID(friends, w.FriendID)
		return true, nil

	case OpRemoveFriend:
		if !ir.ContainsID(friends, w.FriendID) {
			return false, nil
		}
		rec.Friends = ir.RemoveID(friends, w.FriendID)
		return true, nil

	default:
		return false, fmt.Errorf("apply: unknown write op %d", int(w.Op))
	}
}

func equalIDs(a, b []ir.RecordID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
