// Package inmem provides in-memory implementations of the record store and
// the content source.
package inmem

import (
	"context"
	"fmt"
	"github.com/ejacobg/link-validator/validator"
	"github.com/google/uuid"
	"sync"
	"time"
)

// Compile-time check for ensuring Store implements validator.Store.
var _ validator.Store = (*Store)(nil)

// recordKey identifies a record by its owning content item and URL.
type recordKey struct {
	contentID string
	url       string
}

// Store implements an in-memory record store that can be concurrently
// accessed by multiple clients.
type Store struct {
	mu sync.RWMutex

	// records holds every stored record in insertion order. Deleted
	// entries are compacted away on each delete.
	records []*validator.Record

	// byKey enforces (content ID, URL) uniqueness.
	byKey map[recordKey]*validator.Record
}

// NewStore creates a new in-memory record store.
func NewStore() *Store {
	return &Store{
		byKey: make(map[recordKey]*validator.Record),
	}
}

// InsertIfAbsent stores r unless a record for the same content ID and URL
// already exists.
func (s *Store) InsertIfAbsent(_ context.Context, r *validator.Record) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(r), nil
}

// insert adds a copy of r to the store. The caller must hold the write lock.
func (s *Store) insert(r *validator.Record) bool {
	key := recordKey{contentID: r.ContentID, url: r.URL}
	if s.byKey[key] != nil {
		return false
	}

	r.ID = uuid.New()
	rCopy := new(validator.Record)
	*rCopy = *r
	s.byKey[key] = rCopy
	s.records = append(s.records, rCopy)
	return true
}

// ReplaceContent atomically swaps the records of contentID for records.
func (s *Store) ReplaceContent(_ context.Context, contentID string, records []*validator.Record) (int, error) {
	// Validate everything up front so a bad record leaves the store as-is.
	for _, r := range records {
		if r.ContentID != contentID {
			return 0, fmt.Errorf("replace content: record for %q does not belong to %q", r.ContentID, contentID)
		}
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("replace content: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteByContent(contentID)
	var inserted int
	for _, r := range records {
		if s.insert(r) {
			inserted++
		}
	}
	return inserted, nil
}

// DeleteByContent removes all records for contentID.
func (s *Store) DeleteByContent(_ context.Context, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteByContent(contentID)
	return nil
}

// deleteByContent filters the record list in place. The caller must hold
// the write lock.
func (s *Store) deleteByContent(contentID string) {
	kept := s.records[:0]
	for _, r := range s.records {
		if r.ContentID == contentID {
			delete(s.byKey, recordKey{contentID: r.ContentID, url: r.URL})
			continue
		}
		kept = append(kept, r)
	}

	// Drop references held by the tail so deleted records can be collected.
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = nil
	}
	s.records = kept
}

// ContentIDs returns the distinct content IDs that own at least one record.
func (s *Store) ContentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return distinctContentIDs(s.records, func(*validator.Record) bool { return true }), nil
}

// StaleContentIDs returns the distinct content IDs owning at least one
// record checked before the provided timestamp.
func (s *Store) StaleContentIDs(_ context.Context, checkedBefore time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return distinctContentIDs(s.records, func(r *validator.Record) bool {
		return r.CheckedAt.Before(checkedBefore)
	}), nil
}

func distinctContentIDs(records []*validator.Record, keep func(*validator.Record) bool) []string {
	var (
		ids  []string
		seen = make(map[string]struct{})
	)
	for _, r := range records {
		if _, ok := seen[r.ContentID]; ok || !keep(r) {
			continue
		}
		seen[r.ContentID] = struct{}{}
		ids = append(ids, r.ContentID)
	}
	return ids
}

// Records returns an iterator over a snapshot of all stored records.
func (s *Store) Records(_ context.Context) (validator.RecordIterator, error) {
	s.mu.RLock()
	list := append([]*validator.Record(nil), s.records...)
	s.mu.RUnlock()

	return &recordIterator{s: s, records: list}, nil
}

// Clear removes every record.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.byKey = make(map[recordKey]*validator.Record)
	return nil
}
