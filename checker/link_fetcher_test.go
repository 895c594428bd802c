package checker

import (
	"context"
	"fmt"
	gc "gopkg.in/check.v1"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"
)

var _ = gc.Suite(new(LinkFetcherTestSuite))

type LinkFetcherTestSuite struct {
	srv *httptest.Server
	ua  chan string
}

func (s *LinkFetcherTestSuite) SetUpTest(c *gc.C) {
	s.ua = make(chan string, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(code)
		_, _ = fmt.Fprint(w, strings.Repeat("x", 1<<10))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/status/200", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		s.ua <- r.Header.Get("User-Agent")
	})
	s.srv = httptest.NewServer(mux)
}

func (s *LinkFetcherTestSuite) TearDownTest(c *gc.C) {
	s.srv.Close()
}

func (s *LinkFetcherTestSuite) TestStatusCodes(c *gc.C) {
	f := NewHTTPFetcher(nil, "")
	for _, code := range []int{200, 204, 404, 418, 503} {
		got, err := f.FetchStatus(context.TODO(), fmt.Sprintf("%s/status/%d", s.srv.URL, code))
		c.Assert(err, gc.IsNil)
		c.Check(got, gc.Equals, code)
	}
}

func (s *LinkFetcherTestSuite) TestFollowsRedirects(c *gc.C) {
	f := NewHTTPFetcher(s.srv.Client(), "")
	got, err := f.FetchStatus(context.TODO(), s.srv.URL+"/moved")
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, http.StatusOK)
}

func (s *LinkFetcherTestSuite) TestUserAgent(c *gc.C) {
	f := NewHTTPFetcher(s.srv.Client(), "link-validator/test")
	_, err := f.FetchStatus(context.TODO(), s.srv.URL+"/ua")
	c.Assert(err, gc.IsNil)
	c.Assert(<-s.ua, gc.Equals, "link-validator/test")
}

func (s *LinkFetcherTestSuite) TestTimeout(c *gc.C) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelFn()

	f := NewHTTPFetcher(s.srv.Client(), "")
	_, err := f.FetchStatus(ctx, s.srv.URL+"/slow")
	c.Assert(err, gc.NotNil)
}

func (s *LinkFetcherTestSuite) TestUnreachable(c *gc.C) {
	addr := s.srv.URL
	s.srv.Close()

	f := NewHTTPFetcher(nil, "")
	_, err := f.FetchStatus(context.TODO(), addr+"/status/200")
	c.Assert(err, gc.NotNil)
}
