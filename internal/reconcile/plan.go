package reconcile

import (
	"time"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

// Input is everything Plan needs for one transition of one record.
type Input struct {
	RecordID  ir.RecordID
	Timestamp time.Time

	// OldGroup holds the records sharing the previous number. Empty for a
	// creation event.
	OldGroup []ir.Record

	// NewGroup holds the records sharing the new number, usually including
	// RecordID itself.
	NewGroup []ir.Record

	// Linked holds every record that currently lists RecordID as a friend.
	Linked []ir.Record
}

// Plan returns the writes that move RecordID from OldGroup to NewGroup.
//
// The record's own friends become NewGroup minus itself. Every other member
// of NewGroup gains the record; every other member of OldGroup loses it. Any
// record in Linked outside NewGroup also loses it, which repairs links left by
// transitions that were dropped as stale. Removals are issued once per peer.
//
// Writes are ordered: the update first, then removals and additions by peer ID.
func Plan(in Input) []txn.Write {
	friends := ir.IDsOf(in.NewGroup, in.RecordID)
	writes := []txn.Write{txn.Update(in.RecordID, in.Timestamp, friends)}

	leaving := ir.NormalizeIDs(append(
		ir.IDsOf(in.OldGroup, in.RecordID),
		ir.IDsOf(in.Linked, in.RecordID)...,
	))
	for _, peer := range leaving {
		if ir.ContainsID(friends, peer) {
			continue
		}
		writes = append(writes, txn.RemoveFriend(peer, in.RecordID))
	}

	for _, peer := range friends {
		writes = append(writes, txn.AddFriend(peer, in.RecordID))
	}
	return writes
}
