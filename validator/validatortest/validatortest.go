package validatortest

import (
	"context"
	"errors"
	"fmt"
	"github.com/ejacobg/link-validator/validator"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"sort"
	"sync"
	"testing"
	"time"
)

// Suite defines a re-usable set of store-related tests that can be executed
// against any type that implements validator.Store.
type Suite struct {
	S validator.Store

	// Optional helper functions.
	BeforeEach func(*testing.T)
	AfterEach  func(*testing.T)
}

// TestStore runs every store test against s.S.
func (s *Suite) TestStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*testing.T, validator.Store)
	}{
		{"Insert if absent", TestInsertIfAbsent},
		{"Insert rejects good links", TestInsertRejectsGoodLinks},
		{"Concurrent duplicate inserts", TestConcurrentDuplicateInserts},
		{"Delete by content", TestDeleteByContent},
		{"Distinct content IDs", TestContentIDs},
		{"Stale content IDs", TestStaleContentIDs},
		{"Records insertion order", TestRecordsOrder},
		{"Replace content", TestReplaceContent},
		{"Replace content with invalid record", TestReplaceContentInvalidRecord},
		{"Clear", TestClear},
	}

	if s.BeforeEach == nil {
		s.BeforeEach = func(t *testing.T) {}
	}

	if s.AfterEach == nil {
		s.AfterEach = func(t *testing.T) {}
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s.BeforeEach(t)
			test.fn(t, s.S)
			s.AfterEach(t)
		})
	}
}

// TestInsertIfAbsent verifies that a (content, URL) pair is stored once.
func TestInsertIfAbsent(t *testing.T, s validator.Store) {
	ctx := context.Background()
	checkedAt := time.Now().Add(-time.Hour).Truncate(time.Second).UTC()

	rec := &validator.Record{
		ContentID: "42",
		URL:       "http://a.com",
		Status:    validator.StatusUnsafe,
		CheckedAt: checkedAt,
	}
	inserted, err := s.InsertIfAbsent(ctx, rec)
	if err != nil {
		t.Fatalf("failed to insert record: %v", err)
	}
	if !inserted {
		t.Fatalf("expected the first insert to store the record")
	}
	if rec.ID == uuid.Nil {
		t.Fatalf("expected an ID to be assigned to the new record")
	}

	// Same pair with a newer timestamp and different status must not
	// create a second row or rewrite the stored one.
	dup := &validator.Record{
		ContentID: "42",
		URL:       "http://a.com",
		Status:    validator.StatusMalformed,
		CheckedAt: time.Now().Truncate(time.Second).UTC(),
	}
	if inserted, err = s.InsertIfAbsent(ctx, dup); err != nil {
		t.Fatalf("failed to insert duplicate record: %v", err)
	}
	if inserted {
		t.Errorf("expected the duplicate insert to be ignored")
	}

	// Same URL for a different content item is a distinct record.
	other := &validator.Record{
		ContentID: "43",
		URL:       "http://a.com",
		Status:    validator.StatusUnsafe,
		CheckedAt: checkedAt,
	}
	if inserted, err = s.InsertIfAbsent(ctx, other); err != nil || !inserted {
		t.Fatalf("expected record for another content item to be inserted; got %t, %v", inserted, err)
	}

	got := mustRecords(t, s)
	exp := []*validator.Record{rec, other}
	if !cmp.Equal(got, exp) {
		t.Errorf("unexpected records:\n%s", cmp.Diff(exp, got))
	}
}

// TestInsertRejectsGoodLinks verifies that only bad links are persisted.
func TestInsertRejectsGoodLinks(t *testing.T, s validator.Store) {
	ctx := context.Background()

	rec := &validator.Record{
		ContentID: "1",
		URL:       "https://ok.example",
		Status:    validator.StatusOK,
		CheckedAt: time.Now(),
	}
	if _, err := s.InsertIfAbsent(ctx, rec); !errors.Is(err, validator.ErrGoodLink) {
		t.Fatalf("expected ErrGoodLink; got %v", err)
	}

	rec = &validator.Record{URL: "http://x", Status: validator.StatusUnsafe}
	if _, err := s.InsertIfAbsent(ctx, rec); !errors.Is(err, validator.ErrMissingContentID) {
		t.Fatalf("expected ErrMissingContentID; got %v", err)
	}

	if got := mustRecords(t, s); len(got) != 0 {
		t.Errorf("expected no records to be stored; got %d", len(got))
	}
}

// TestConcurrentDuplicateInserts verifies that racing inserts of the same
// pair still yield a single record.
func TestConcurrentDuplicateInserts(t *testing.T, s validator.Store) {
	const workers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		ctx      = context.Background()
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.InsertIfAbsent(ctx, &validator.Record{
				ContentID: "7",
				URL:       "https://dup.example/404",
				Status:    validator.StatusNotFound,
				CheckedAt: time.Now(),
			})
			if err != nil {
				t.Errorf("insert failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Errorf("expected exactly one successful insert; got %d", inserted)
	}
	if got := mustRecords(t, s); len(got) != 1 {
		t.Errorf("expected one stored record; got %d", len(got))
	}
}

// TestDeleteByContent verifies that all records of one content item are
// removed and others are left untouched.
func TestDeleteByContent(t *testing.T, s validator.Store) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	mustInsert(t, s, "1", "http://a", now)
	mustInsert(t, s, "1", "http://b", now)
	keep := mustInsert(t, s, "2", "http://a", now)

	if err := s.DeleteByContent(ctx, "1"); err != nil {
		t.Fatalf("failed to delete records: %v", err)
	}

	// Deleting an unknown content item is not an error.
	if err := s.DeleteByContent(ctx, "does-not-exist"); err != nil {
		t.Fatalf("unexpected error deleting unknown content: %v", err)
	}

	got := mustRecords(t, s)
	if exp := []*validator.Record{keep}; !cmp.Equal(got, exp) {
		t.Errorf("unexpected records after delete:\n%s", cmp.Diff(exp, got))
	}
}

// TestContentIDs verifies that owning content IDs are reported once each.
func TestContentIDs(t *testing.T, s validator.Store) {
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		mustInsert(t, s, "1", fmt.Sprintf("http://a/%d", i), now)
	}
	mustInsert(t, s, "2", "http://a/0", now)

	ids, err := s.ContentIDs(ctx)
	if err != nil {
		t.Fatalf("failed to list content IDs: %v", err)
	}
	sort.Strings(ids)
	if exp := []string{"1", "2"}; !cmp.Equal(ids, exp) {
		t.Errorf("unexpected content IDs:\n%s", cmp.Diff(exp, ids))
	}
}

// TestStaleContentIDs verifies the age filter used by the revalidation
// planner: any aged record marks its whole content item as stale.
func TestStaleContentIDs(t *testing.T, s validator.Store) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()
	day := 24 * time.Hour

	mustInsert(t, s, "old", "http://a", now.Add(-5*day))
	mustInsert(t, s, "fresh", "http://a", now.Add(-3*day))
	mustInsert(t, s, "mixed", "http://a", now.Add(-time.Hour))
	mustInsert(t, s, "mixed", "http://b", now.Add(-6*day))

	ids, err := s.StaleContentIDs(ctx, now.Add(-4*day))
	if err != nil {
		t.Fatalf("failed to list stale content IDs: %v", err)
	}
	sort.Strings(ids)
	if exp := []string{"mixed", "old"}; !cmp.Equal(ids, exp) {
		t.Errorf("unexpected stale content IDs:\n%s", cmp.Diff(exp, ids))
	}
}

// TestRecordsOrder verifies that records are listed in insertion order,
// which the grouping logic relies on for first-seen semantics.
func TestRecordsOrder(t *testing.T, s validator.Store) {
	now := time.Now().Truncate(time.Second).UTC()

	var exp []*validator.Record
	for i, cid := range []string{"B", "A", "C", "A"} {
		exp = append(exp, mustInsert(t, s, cid, fmt.Sprintf("http://x/%d", i), now))
	}

	if got := mustRecords(t, s); !cmp.Equal(got, exp) {
		t.Errorf("records not returned in insertion order:\n%s", cmp.Diff(exp, got))
	}
}

// TestReplaceContent verifies the delete-then-insert semantics used for
// incremental updates.
func TestReplaceContent(t *testing.T, s validator.Store) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	mustInsert(t, s, "c", "http://first-run", now.Add(-time.Hour))
	other := mustInsert(t, s, "d", "http://first-run", now.Add(-time.Hour))

	second := []*validator.Record{
		{ContentID: "c", URL: "https://second.example/missing", Status: validator.StatusNotFound, CheckedAt: now},
		{ContentID: "c", URL: "second.example", Status: validator.StatusUnspecifiedProtocol, CheckedAt: now},
		{ContentID: "c", URL: "second.example", Status: validator.StatusUnspecifiedProtocol, CheckedAt: now},
	}
	n, err := s.ReplaceContent(ctx, "c", second)
	if err != nil {
		t.Fatalf("failed to replace content records: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 inserts; got %d", n)
	}

	got := mustRecords(t, s)
	exp := []*validator.Record{other, second[0], second[1]}
	if !cmp.Equal(got, exp) {
		t.Errorf("unexpected records after replace:\n%s", cmp.Diff(exp, got))
	}

	// Replacing with an empty set clears the content item.
	if n, err = s.ReplaceContent(ctx, "c", nil); err != nil || n != 0 {
		t.Fatalf("expected empty replace to succeed with 0 inserts; got %d, %v", n, err)
	}
	got = mustRecords(t, s)
	if exp = []*validator.Record{other}; !cmp.Equal(got, exp) {
		t.Errorf("unexpected records after empty replace:\n%s", cmp.Diff(exp, got))
	}
}

// TestReplaceContentInvalidRecord verifies that a replace containing a bad
// record leaves the previous state untouched.
func TestReplaceContentInvalidRecord(t *testing.T, s validator.Store) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	prev := mustInsert(t, s, "c", "http://prev", now)

	replacement := []*validator.Record{
		{ContentID: "c", URL: "http://new", Status: validator.StatusUnsafe, CheckedAt: now},
		{ContentID: "c", URL: "https://fine", Status: validator.StatusOK, CheckedAt: now},
	}
	if _, err := s.ReplaceContent(ctx, "c", replacement); !errors.Is(err, validator.ErrGoodLink) {
		t.Fatalf("expected ErrGoodLink; got %v", err)
	}

	mismatched := []*validator.Record{
		{ContentID: "other", URL: "http://new", Status: validator.StatusUnsafe, CheckedAt: now},
	}
	if _, err := s.ReplaceContent(ctx, "c", mismatched); err == nil {
		t.Fatalf("expected an error when a record belongs to another content item")
	}

	got := mustRecords(t, s)
	if exp := []*validator.Record{prev}; !cmp.Equal(got, exp) {
		t.Errorf("failed replace modified the store:\n%s", cmp.Diff(exp, got))
	}
}

// TestClear verifies that all records are removed.
func TestClear(t *testing.T, s validator.Store) {
	ctx := context.Background()
	now := time.Now()

	mustInsert(t, s, "1", "http://a", now)
	mustInsert(t, s, "2", "http://b", now)

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("failed to clear store: %v", err)
	}
	if got := mustRecords(t, s); len(got) != 0 {
		t.Errorf("expected empty store; got %d records", len(got))
	}

	ids, err := s.ContentIDs(ctx)
	if err != nil {
		t.Fatalf("failed to list content IDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no content IDs after clear; got %v", ids)
	}

	// The store remains usable.
	mustInsert(t, s, "1", "http://a", now)
}

func mustInsert(t *testing.T, s validator.Store, contentID, url string, checkedAt time.Time) *validator.Record {
	t.Helper()
	rec := &validator.Record{
		ContentID: contentID,
		URL:       url,
		Status:    validator.StatusUnsafe,
		CheckedAt: checkedAt.Truncate(time.Second).UTC(),
	}
	inserted, err := s.InsertIfAbsent(context.Background(), rec)
	if err != nil {
		t.Fatalf("failed to insert record: %v", err)
	}
	if !inserted {
		t.Fatalf("expected record (%s, %s) to be inserted", contentID, url)
	}
	return rec
}

func mustRecords(t *testing.T, s validator.Store) []*validator.Record {
	t.Helper()
	it, err := s.Records(context.Background())
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	records, err := validator.Collect(it)
	if err != nil {
		t.Fatalf("failed to iterate records: %v", err)
	}
	return records
}

