package checker

import (
	"github.com/ejacobg/link-validator/pipeline"
	"github.com/ejacobg/link-validator/validator"
	"sync"
	"time"
)

var (
	_ pipeline.Payload = (*linkPayload)(nil)

	// A sweep can emit a payload per link in the corpus; recycle them.
	payloadPool = sync.Pool{
		New: func() interface{} { return new(linkPayload) },
	}
)

type linkPayload struct {
	// Position of the link in the scan set. Worker pools reorder
	// payloads, so results are sorted on this before use.
	Seq int

	// Populated by the link source.
	ContentID string
	URL       string

	// Populated by the classifier stage.
	Status    validator.Status
	CheckedAt time.Time
}

// Clone implements pipeline.Payload.
func (p *linkPayload) Clone() pipeline.Payload {
	newP := payloadPool.Get().(*linkPayload)
	*newP = *p
	return newP
}

// MarkAsProcessed implements pipeline.Payload.
func (p *linkPayload) MarkAsProcessed() {
	*p = linkPayload{}
	payloadPool.Put(p)
}

// record converts the payload into a record that can be stored.
func (p *linkPayload) record() *validator.Record {
	return &validator.Record{
		ContentID: p.ContentID,
		URL:       p.URL,
		Status:    p.Status,
		CheckedAt: p.CheckedAt,
	}
}
