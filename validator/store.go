// Package validator defines the bad-link records produced by the link
// checker and the contract for the stores that persist them.
package validator

import (
	"context"
	"time"
)

// Store is implemented by objects that persist bad-link records. At most
// one record exists per (ContentID, URL) pair.
type Store interface {
	// InsertIfAbsent stores r unless a record for the same content ID and
	// URL already exists. It reports whether an insert took place and
	// assigns r.ID when it does.
	InsertIfAbsent(ctx context.Context, r *Record) (bool, error)

	// ReplaceContent atomically removes every record for contentID and
	// inserts records in its place. It returns the number of inserts.
	ReplaceContent(ctx context.Context, contentID string, records []*Record) (int, error)

	// DeleteByContent removes all records for contentID.
	DeleteByContent(ctx context.Context, contentID string) error

	// ContentIDs returns the distinct content IDs that own at least one
	// record.
	ContentIDs(ctx context.Context) ([]string, error)

	// StaleContentIDs returns the distinct content IDs owning at least one
	// record checked before the provided timestamp.
	StaleContentIDs(ctx context.Context, checkedBefore time.Time) ([]string, error)

	// Records returns an iterator over all records in insertion order.
	Records(ctx context.Context) (RecordIterator, error)

	// Clear removes every record.
	Clear(ctx context.Context) error
}
