package validator

import (
	"github.com/google/uuid"
	"time"
)

// Record describes a link that was found in a content item and classified
// as bad.
type Record struct {
	// A unique identifier assigned when the record is first stored.
	ID uuid.UUID

	// The content item the link was extracted from.
	ContentID string

	// The link target exactly as it appeared in the content body.
	URL string

	// The classification result. Never StatusOK.
	Status Status

	// The timestamp when the link was last classified.
	CheckedAt time.Time
}

// RecordIterator is implemented by objects that can iterate stored records.
type RecordIterator interface {
	// Next advances the iterator. If no more items are available or an
	// error occurs, calls to Next() return false.
	Next() bool

	// Error returns the last error encountered by the iterator.
	Error() error

	// Close releases any resources associated with an iterator.
	Close() error

	// Record returns the currently fetched record.
	Record() *Record
}

// Validate checks that r can be persisted.
func (r *Record) Validate() error {
	switch {
	case r.ContentID == "":
		return ErrMissingContentID
	case r.URL == "":
		return ErrMissingURL
	case !r.Status.Bad():
		return ErrGoodLink
	}
	return nil
}

// Collect drains it into a slice and closes it.
func Collect(it RecordIterator) ([]*Record, error) {
	var out []*Record
	for it.Next() {
		out = append(out, it.Record())
	}
	if err := it.Error(); err != nil {
		_ = it.Close()
		return nil, err
	}
	return out, it.Close()
}
