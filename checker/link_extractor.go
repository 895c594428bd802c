package checker

import (
	"regexp"
	"strings"
)

// Match the href of <a> tags. The value may be double-quoted, single-quoted
// or bare, and attributes such as data-href are not mistaken for href.
var findLinkRegex = regexp.MustCompile(`(?i)<a\s(?:[^>]*?\s)?href\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)

// ExtractLinks returns the anchor targets found in body in document order.
// Values are returned as written, without resolution or de-duplication.
// Malformed markup never produces an error; it just yields fewer links.
func ExtractLinks(body string) []string {
	var links []string
	for _, match := range findLinkRegex.FindAllStringSubmatch(body, -1) {
		// Exactly one of the alternatives captured the value.
		link := match[1] + match[2] + match[3]
		if strings.TrimSpace(link) == "" {
			continue
		}
		links = append(links, link)
	}
	return links
}
