package inmem

import "github.com/ejacobg/link-validator/validator"

// recordIterator is a validator.RecordIterator implementation for the
// in-memory store.
type recordIterator struct {
	s *Store

	records []*validator.Record
	curr    int
}

// Next implements validator.RecordIterator.
func (i *recordIterator) Next() bool {
	if i.curr >= len(i.records) {
		return false
	}
	i.curr++
	return true
}

// Error implements validator.RecordIterator.
func (i *recordIterator) Error() error {
	return nil
}

// Close implements validator.RecordIterator.
func (i *recordIterator) Close() error {
	return nil
}

// Record implements validator.RecordIterator.
func (i *recordIterator) Record() *validator.Record {
	// Hand out a copy taken under the read lock so callers can never
	// mutate stored state.
	i.s.mu.RLock()
	r := new(validator.Record)
	*r = *i.records[i.curr-1]
	i.s.mu.RUnlock()
	return r
}
