package checker

import (
	"context"
	"fmt"
	"github.com/ejacobg/link-validator/validator"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

const (
	unsafePrefix = "http://"
	securePrefix = "https://"

	defaultCheckTimeout = 10 * time.Second
)

// StatusFetcher is implemented by objects that can retrieve the HTTP status
// code of a URL. Implementations must honor the deadline carried by ctx.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, url string) (int, error)
}

// Classifier assigns a validator.Status to individual links. Cheap
// syntactic checks run first; the fetcher is only consulted for links that
// look like well-formed https URLs.
type Classifier struct {
	fetcher StatusFetcher
	timeout time.Duration
}

// NewClassifier returns a Classifier that bounds each live check by timeout.
func NewClassifier(fetcher StatusFetcher, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Classifier{fetcher: fetcher, timeout: timeout}
}

// Classify returns the status of link. The first matching rule wins:
//   - links using plain http are unsafe;
//   - links that do not start with https:// (including protocol-relative
//     and other schemes) have an unspecified protocol. Leading whitespace
//     is ignored here so that padded https links fall through to the
//     syntax check;
//   - links that fail URL syntax validation are malformed;
//   - everything else is classified by its live HTTP status.
func (c *Classifier) Classify(ctx context.Context, link string) validator.Status {
	switch {
	case hasPrefixFold(link, unsafePrefix):
		return validator.StatusUnsafe
	case !hasPrefixFold(strings.TrimLeftFunc(link, unicode.IsSpace), securePrefix):
		return validator.StatusUnspecifiedProtocol
	case !isWellFormed(link):
		return validator.StatusMalformed
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	code, err := c.fetcher.FetchStatus(checkCtx, link)
	if err != nil {
		// Unreachable hosts, refused connections and timeouts are all
		// reported as not found.
		return validator.StatusNotFound
	}
	return statusLine(code)
}

// statusLine formats code as "<code> <reason phrase>".
func statusLine(code int) validator.Status {
	text := http.StatusText(code)
	if code <= 0 || text == "" {
		return validator.StatusIncorrectStatusCode
	}
	return validator.Status(fmt.Sprintf("%d %s", code, text))
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// isWellFormed reports whether link is an absolute URL with a host and
// without embedded whitespace or control characters.
func isWellFormed(link string) bool {
	if strings.IndexFunc(link, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) != -1 {
		return false
	}

	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Opaque == "" && isValidHost(u.Hostname())
}

// isValidHost accepts IP literals and dot-separated hostnames whose labels
// are non-empty and do not start or end with a hyphen. A single trailing
// dot is allowed.
func isValidHost(host string) bool {
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}

	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	for _, label := range labels {
		if label == "" || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if r != '-' && r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}
