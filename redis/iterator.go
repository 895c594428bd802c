package redis

import (
	"encoding/json"
	"fmt"
	"github.com/ejacobg/link-validator/validator"
	"github.com/google/uuid"
)

// recordIterator decodes the JSON payloads returned by the records script.
type recordIterator struct {
	raw  []string
	curr int

	lastErr       error
	latchedRecord *validator.Record
}

// Next implements validator.RecordIterator.
func (i *recordIterator) Next() bool {
	if i.lastErr != nil || i.curr >= len(i.raw) {
		return false
	}

	var p payload
	if err := json.Unmarshal([]byte(i.raw[i.curr]), &p); err != nil {
		i.lastErr = fmt.Errorf("record iterator: %w", err)
		return false
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		i.lastErr = fmt.Errorf("record iterator: %w", err)
		return false
	}
	i.curr++

	i.latchedRecord = &validator.Record{
		ID:        id,
		ContentID: p.ContentID,
		URL:       p.URL,
		Status:    validator.Status(p.Status),
		CheckedAt: p.CheckedAt.UTC(),
	}
	return true
}

// Error implements validator.RecordIterator.
func (i *recordIterator) Error() error {
	return i.lastErr
}

// Close implements validator.RecordIterator.
func (i *recordIterator) Close() error {
	return nil
}

// Record implements validator.RecordIterator.
func (i *recordIterator) Record() *validator.Record {
	return i.latchedRecord
}
