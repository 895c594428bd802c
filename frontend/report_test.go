package frontend

import (
	"context"
	"encoding/json"
	"github.com/ejacobg/link-validator/checker"
	"github.com/ejacobg/link-validator/content"
	"github.com/ejacobg/link-validator/inmem"
	"github.com/ejacobg/link-validator/validator"
	gc "gopkg.in/check.v1"
	"time"
)

var _ = gc.Suite(new(DescriberTestSuite))

type DescriberTestSuite struct{}

func (s *DescriberTestSuite) TestSweepEncoding(c *gc.C) {
	d := NewDescriber(inmem.NewContentSource(
		&content.Item{ID: "42", Title: "<i>Answer</i>", Status: content.StatusPublished},
	), nil)

	resp := d.Sweep(context.TODO(), &checker.SweepResult{
		NewLinks: 2,
		Groups: []*validator.Group{
			{
				URL:        "http://a.com",
				Status:     validator.StatusUnsafe,
				CheckedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
				ContentIDs: []string{"42"},
			},
		},
	})

	data, err := json.Marshal(resp)
	c.Assert(err, gc.IsNil)
	c.Assert(string(data), gc.Equals,
		`{"status":"ADDED","new_links_count":2,"links":[{"url":"http://a.com","status":"Unsafe link","checked_at":"2024-03-01T12:00:00Z","origins":[{"id":"42","title":"Answer"}]}]}`,
	)
}

func (s *DescriberTestSuite) TestGroupsWithoutContentGetter(c *gc.C) {
	d := NewDescriber(nil, nil)

	groups := d.Groups(context.TODO(), []*validator.Group{
		{URL: "ftp://b", Status: validator.StatusUnspecifiedProtocol, ContentIDs: []string{"7"}},
	})
	c.Assert(groups, gc.HasLen, 1)
	c.Assert(groups[0].Origins, gc.DeepEquals, []OriginRef{{ID: "7"}})

	c.Assert(d.Groups(context.TODO(), nil), gc.HasLen, 0)
}
