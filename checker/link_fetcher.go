package checker

import (
	"context"
	"io"
	"net/http"
)

// Cap on the number of body bytes drained so connections can be reused.
const maxDrainBytes = 64 << 10

// URLGetter is implemented by objects that can perform HTTP requests.
type URLGetter interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFetcher is a StatusFetcher that issues GET requests.
type HTTPFetcher struct {
	getter    URLGetter
	userAgent string
}

// NewHTTPFetcher returns a fetcher that sends requests through getter. If
// getter is nil, http.DefaultClient is used.
func NewHTTPFetcher(getter URLGetter, userAgent string) *HTTPFetcher {
	if getter == nil {
		getter = http.DefaultClient
	}
	return &HTTPFetcher{getter: getter, userAgent: userAgent}
}

// FetchStatus returns the status code of the final response after
// redirects. Transport failures are returned as errors.
func (f *HTTPFetcher) FetchStatus(ctx context.Context, link string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return 0, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	res, err := f.getter.Do(req)
	if err != nil {
		return 0, err
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxDrainBytes))
	_ = res.Body.Close()
	return res.StatusCode, nil
}
