// Package content describes the items whose bodies are scanned for links.
package content

import "errors"

// Publication statuses understood by the link checker.
const (
	StatusPublished = "publish"
	StatusDraft     = "draft"
	StatusAutoDraft = "auto-draft"
)

// ErrNotFound is returned when a content item does not exist.
var ErrNotFound = errors.New("content item not found")

// Item is a unit of text that is scanned for links, such as an article.
type Item struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Status string `json:"status"`
}

// IsDraft reports whether status denotes an unpublished draft.
func IsDraft(status string) bool {
	return status == StatusDraft || status == StatusAutoDraft
}
