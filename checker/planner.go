package checker

import (
	"context"
	"fmt"
	"github.com/ejacobg/link-validator/validator"
	"github.com/juju/clock"
	"time"
)

// defaultStaleAfter is the age after which stored records are purged and
// their content item is checked again.
const defaultStaleAfter = 4 * 24 * time.Hour

// scanPlan is the outcome of the revalidation planner.
type scanPlan struct {
	// Content items whose records were purged for being stale.
	purged []string

	// Content items that still own fresh records and are skipped by the
	// sweep. Items without bad links are never stored, so they are never
	// in this list and get scanned on every sweep.
	known []string
}

// revalidationPlanner decides which content has to be scanned by a sweep.
type revalidationPlanner struct {
	store      validator.Store
	clock      clock.Clock
	staleAfter time.Duration
}

// plan purges every content item with at least one stale record, then
// returns the content items that are still represented in the store. A
// content item with a mix of fresh and stale records loses all of them.
func (rp *revalidationPlanner) plan(ctx context.Context) (*scanPlan, error) {
	cutoff := rp.clock.Now().Add(-rp.staleAfter)
	stale, err := rp.store.StaleContentIDs(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	for _, id := range stale {
		if err = rp.store.DeleteByContent(ctx, id); err != nil {
			return nil, fmt.Errorf("plan: purge %q: %w", id, err)
		}
	}

	known, err := rp.store.ContentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	return &scanPlan{purged: stale, known: known}, nil
}
