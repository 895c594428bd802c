package frontend

import (
	"context"
	"errors"
	"github.com/ejacobg/link-validator/checker"
	"github.com/ejacobg/link-validator/content"
	"github.com/ejacobg/link-validator/validator"
	"github.com/sirupsen/logrus"
	"io"
	"time"
)

// GroupResponse describes the content items sharing a bad link.
type GroupResponse struct {
	URL       string      `json:"url"`
	Status    string      `json:"status"`
	CheckedAt time.Time   `json:"checked_at"`
	Origins   []OriginRef `json:"origins"`
}

// OriginRef identifies a content item containing a bad link.
type OriginRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// SweepResponse describes the outcome of a full sweep.
type SweepResponse struct {
	Status        string           `json:"status"`
	NewLinksCount int              `json:"new_links_count"`
	Links         []*GroupResponse `json:"links"`
}

// Describer converts link checker results into the shapes returned to
// operators, over HTTP as well as on the command line.
type Describer struct {
	content ContentGetter
	titles  *titleSanitizer
	logger  *logrus.Entry
}

// NewDescriber returns a Describer that resolves origin titles through cg.
// A nil logger discards output.
func NewDescriber(cg ContentGetter, logger *logrus.Entry) *Describer {
	if logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		logger = logrus.NewEntry(l)
	}
	return &Describer{content: cg, titles: newTitleSanitizer(), logger: logger}
}

// Sweep describes a sweep result. The status is ADDED when the sweep found
// bad links and NO_NEW_LINKS otherwise.
func (d *Describer) Sweep(ctx context.Context, res *checker.SweepResult) *SweepResponse {
	resp := &SweepResponse{
		Status:        StatusNoNewLinks,
		NewLinksCount: res.NewLinks,
		Links:         d.Groups(ctx, res.Groups),
	}
	if len(res.Groups) > 0 {
		resp.Status = StatusAdded
	}
	return resp
}

// Groups attaches the sanitized title of each origin. Titles that cannot
// be resolved are left empty.
func (d *Describer) Groups(ctx context.Context, groups []*validator.Group) []*GroupResponse {
	titles := make(map[string]string)
	out := make([]*GroupResponse, 0, len(groups))
	for _, g := range groups {
		gr := &GroupResponse{
			URL:       g.URL,
			Status:    string(g.Status),
			CheckedAt: g.CheckedAt,
			Origins:   make([]OriginRef, 0, len(g.ContentIDs)),
		}
		for _, id := range g.ContentIDs {
			title, ok := titles[id]
			if !ok {
				title = d.lookupTitle(ctx, id)
				titles[id] = title
			}
			gr.Origins = append(gr.Origins, OriginRef{ID: id, Title: title})
		}
		out = append(out, gr)
	}
	return out
}

func (d *Describer) lookupTitle(ctx context.Context, id string) string {
	if d.content == nil {
		return ""
	}

	item, err := d.content.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			d.logger.WithFields(logrus.Fields{"content_id": id, "err": err}).Warn("unable to look up content title")
		}
		return ""
	}
	return d.titles.Sanitize(item.Title)
}
