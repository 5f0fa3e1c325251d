// Package ir provides the record and notification types shared by every
// friendsync package.
//
// This package contains type definitions and small value helpers only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Record IDs are NFC-normalized at the boundary (ParseRecordID)
//   - Friend sets are always sorted and free of duplicates
//   - A zero NumberLastUpdatedAt means "never updated" and reads as NeverUpdated
package ir
