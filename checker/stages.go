package checker

import (
	"context"
	"github.com/ejacobg/link-validator/content"
	"github.com/ejacobg/link-validator/pipeline"
	"github.com/ejacobg/link-validator/validator"
	"github.com/juju/clock"
	"sort"
)

// candidate is a link waiting to be classified.
type candidate struct {
	contentID string
	url       string
}

// linkSource feeds every link extracted from a set of content items into
// the pipeline.
type linkSource struct {
	links []candidate
	curr  int
}

func newLinkSource(items []*content.Item) *linkSource {
	src := new(linkSource)
	for _, item := range items {
		for _, link := range ExtractLinks(item.Body) {
			src.links = append(src.links, candidate{contentID: item.ID, url: link})
		}
	}
	return src
}

func (s *linkSource) Error() error { return nil }

func (s *linkSource) Next(context.Context) bool {
	if s.curr >= len(s.links) {
		return false
	}
	s.curr++
	return true
}

func (s *linkSource) Payload() pipeline.Payload {
	c := s.links[s.curr-1]
	p := payloadPool.Get().(*linkPayload)

	p.Seq = s.curr - 1
	p.ContentID = c.contentID
	p.URL = c.url
	return p
}

// linkClassifier is the pipeline stage that classifies each link and drops
// the good ones.
type linkClassifier struct {
	classifier *Classifier
	clock      clock.Clock
	metrics    *Metrics
}

func newLinkClassifier(classifier *Classifier, clk clock.Clock, metrics *Metrics) *linkClassifier {
	return &linkClassifier{
		classifier: classifier,
		clock:      clk,
		metrics:    metrics,
	}
}

func (lc *linkClassifier) Process(ctx context.Context, p pipeline.Payload) (pipeline.Payload, error) {
	payload := p.(*linkPayload)

	payload.Status = lc.classifier.Classify(ctx, payload.URL)
	payload.CheckedAt = lc.clock.Now()
	lc.metrics.linkChecked(payload.Status)

	if !payload.Status.Bad() {
		return nil, nil
	}
	return payload, nil
}

// badLinkSink collects the payloads that survive classification. The
// pipeline calls Consume from a single goroutine.
type badLinkSink struct {
	payloads []linkPayload
}

func (s *badLinkSink) Consume(_ context.Context, p pipeline.Payload) error {
	s.payloads = append(s.payloads, *p.(*linkPayload))
	return nil
}

// records returns the collected bad links in scan-set order.
func (s *badLinkSink) records() []*validator.Record {
	sort.Slice(s.payloads, func(i, j int) bool { return s.payloads[i].Seq < s.payloads[j].Seq })

	out := make([]*validator.Record, 0, len(s.payloads))
	for i := range s.payloads {
		out = append(out, s.payloads[i].record())
	}
	return out
}
