package checker

import (
	"context"
	"github.com/ejacobg/link-validator/inmem"
	"github.com/ejacobg/link-validator/validator"
	"github.com/juju/clock/testclock"
	gc "gopkg.in/check.v1"
	"time"
)

var _ = gc.Suite(new(PlannerTestSuite))

type PlannerTestSuite struct{}

func (s *PlannerTestSuite) TestPlan(c *gc.C) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := inmem.NewStore()

	for _, r := range []*validator.Record{
		{ContentID: "old", URL: "http://a.com", CheckedAt: now.Add(-5 * 24 * time.Hour)},
		{ContentID: "fresh", URL: "http://b.com", CheckedAt: now.Add(-3 * 24 * time.Hour)},
		{ContentID: "mixed", URL: "http://c.com", CheckedAt: now.Add(-3 * 24 * time.Hour)},
		{ContentID: "mixed", URL: "http://d.com", CheckedAt: now.Add(-5 * 24 * time.Hour)},
	} {
		r.Status = validator.StatusUnsafe
		_, err := store.InsertIfAbsent(context.TODO(), r)
		c.Assert(err, gc.IsNil)
	}

	rp := &revalidationPlanner{
		store:      store,
		clock:      testclock.NewClock(now),
		staleAfter: defaultStaleAfter,
	}

	plan, err := rp.plan(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(plan.purged, gc.DeepEquals, []string{"old", "mixed"})
	c.Assert(plan.known, gc.DeepEquals, []string{"fresh"})

	remaining, err := store.ContentIDs(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(remaining, gc.DeepEquals, []string{"fresh"})
}
