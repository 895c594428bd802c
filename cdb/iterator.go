package cdb

import (
	"database/sql"
	"fmt"
	"github.com/ejacobg/link-validator/validator"
)

// recordIterator is a validator.RecordIterator implementation for the cdb
// store.
type recordIterator struct {
	rows          *sql.Rows
	lastErr       error
	latchedRecord *validator.Record
}

// Next implements validator.RecordIterator.
func (i *recordIterator) Next() bool {
	if i.lastErr != nil || !i.rows.Next() {
		if i.lastErr == nil {
			i.lastErr = i.rows.Err()
		}
		return false
	}

	var (
		r      = new(validator.Record)
		status string
	)
	i.lastErr = i.rows.Scan(&r.ID, &r.ContentID, &r.URL, &status, &r.CheckedAt)
	if i.lastErr != nil {
		return false
	}
	r.Status = validator.Status(status)
	r.CheckedAt = r.CheckedAt.UTC()

	i.latchedRecord = r
	return true
}

// Error implements validator.RecordIterator.
func (i *recordIterator) Error() error {
	return i.lastErr
}

// Close implements validator.RecordIterator.
func (i *recordIterator) Close() error {
	err := i.rows.Close()
	if err != nil {
		return fmt.Errorf("record iterator: %w", err)
	}
	return nil
}

// Record implements validator.RecordIterator.
func (i *recordIterator) Record() *validator.Record {
	return i.latchedRecord
}
