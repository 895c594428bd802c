package frontend

import (
	"github.com/microcosm-cc/bluemonday"
	"html"
	"regexp"
	"strings"
	"sync"
)

var repeatedSpaceRegex = regexp.MustCompile(`\s+`)

// titleSanitizer reduces content titles to plain text before they are
// returned as report origins.
type titleSanitizer struct {
	// bluemonday policies are not thread-safe, so each request borrows one.
	policyPool sync.Pool
}

func newTitleSanitizer() *titleSanitizer {
	return &titleSanitizer{
		policyPool: sync.Pool{
			New: func() interface{} {
				return bluemonday.StrictPolicy()
			},
		},
	}
}

func (ts *titleSanitizer) Sanitize(title string) string {
	policy := ts.policyPool.Get().(*bluemonday.Policy)
	defer ts.policyPool.Put(policy)

	return strings.TrimSpace(html.UnescapeString(repeatedSpaceRegex.ReplaceAllString(
		policy.Sanitize(title), " ",
	)))
}
