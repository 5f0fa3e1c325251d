package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/friendsync/internal/ir"
)

// Lister lists every record in a store.
type Lister interface {
	ListRecords(ctx context.Context) ([]ir.Record, error)
}

// ViolationKind names a broken friendship invariant.
type ViolationKind string

const (
	// SelfLink: a record lists itself as a friend.
	SelfLink ViolationKind = "self_link"
	// MissingLink: two records share a number but one does not list the other.
	MissingLink ViolationKind = "missing_link"
	// StrayLink: a record lists a friend with a different number, or one that
	// does not exist.
	StrayLink ViolationKind = "stray_link"
)

// Violation is one invariant failure, seen from Record's side.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Record ir.RecordID   `json:"record"`
	Peer   ir.RecordID   `json:"peer"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s -> %s", v.Kind, v.Record, v.Peer)
}

// Audit checks the friendship invariants over a settled store.
// Violations are sorted by record, then peer, then kind. The result is empty
// (not nil) when the store is consistent.
func Audit(ctx context.Context, l Lister) ([]Violation, error) {
	recs, err := l.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	return Check(recs), nil
}

// Check is Audit over an in-memory snapshot.
func Check(recs []ir.Record) []Violation {
	byID := make(map[ir.RecordID]ir.Record, len(recs))
	groups := make(map[ir.Number][]ir.RecordID)
	for _, r := range recs {
		byID[r.ID] = r
		groups[r.Number] = append(groups[r.Number], r.ID)
	}

	violations := []Violation{}
	for _, r := range recs {
		for _, f := range r.Friends {
			if f == r.ID {
				violations = append(violations, Violation{Kind: SelfLink, Record: r.ID, Peer: f})
				continue
			}
			peer, ok := byID[f]
			if !ok || peer.Number != r.Number {
				violations = append(violations, Violation{Kind: StrayLink, Record: r.ID, Peer: f})
			}
		}
		for _, peer := range groups[r.Number] {
			if peer != r.ID && !r.HasFriend(peer) {
				violations = append(violations, Violation{Kind: MissingLink, Record: r.ID, Peer: peer})
			}
		}
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.Record != b.Record {
			return a.Record < b.Record
		}
		if a.Peer != b.Peer {
			return a.Peer < b.Peer
		}
		return a.Kind < b.Kind
	})
	return violations
}
