package checker

import (
	"context"
	"errors"
	"fmt"
	"github.com/ejacobg/link-validator/checker/mocks"
	"github.com/ejacobg/link-validator/content"
	"github.com/ejacobg/link-validator/inmem"
	"github.com/ejacobg/link-validator/validator"
	"github.com/golang/mock/gomock"
	"github.com/juju/clock/testclock"
	gc "gopkg.in/check.v1"
	"sort"
	"sync"
	"time"
)

var _ = gc.Suite(new(EngineTestSuite))

type EngineTestSuite struct {
	clk     *testclock.Clock
	source  *inmem.ContentSource
	store   *inmem.Store
	fetcher *stubFetcher
}

func (s *EngineTestSuite) SetUpTest(c *gc.C) {
	s.clk = testclock.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	s.source = inmem.NewContentSource()
	s.store = inmem.NewStore()
	s.fetcher = &stubFetcher{codes: map[string]int{
		"https://good.com":   200,
		"https://gone.com":   410,
		"https://broken.com": 500,
	}}
}

func (s *EngineTestSuite) newEngine(c *gc.C, updateOnSave bool) *Engine {
	e, err := NewEngine(Config{
		Source:       s.source,
		Fetcher:      s.fetcher,
		Store:        s.store,
		Clock:        s.clk,
		Workers:      4,
		UpdateOnSave: updateOnSave,
	})
	c.Assert(err, gc.IsNil)
	return e
}

func (s *EngineTestSuite) TestConfigValidation(c *gc.C) {
	_, err := NewEngine(Config{Workers: -1})
	c.Assert(err, gc.ErrorMatches, "(?s)link checker config validation failed.*content source.*status fetcher.*record store.*worker count.*")
}

func (s *EngineTestSuite) TestSweepEndToEnd(c *gc.C) {
	s.source.Put(&content.Item{
		ID:     "42",
		Body:   `<a href="http://a.com">a</a> <a href='ftp://b'>b</a> <a href="https://good.com">ok</a>`,
		Status: content.StatusPublished,
	})

	res, err := s.newEngine(c, false).Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(res.NewLinks, gc.Equals, 2)
	c.Assert(res.Scanned, gc.Equals, 1)
	c.Assert(res.Checked, gc.Equals, 3)
	c.Assert(res.Groups, gc.DeepEquals, []*validator.Group{
		{URL: "http://a.com", Status: validator.StatusUnsafe, CheckedAt: s.clk.Now(), ContentIDs: []string{"42"}},
		{URL: "ftp://b", Status: validator.StatusUnspecifiedProtocol, CheckedAt: s.clk.Now(), ContentIDs: []string{"42"}},
	})

	records := s.storedRecords(c)
	c.Assert(records, gc.HasLen, 2)
	for _, r := range records {
		c.Check(r.ContentID, gc.Equals, "42")
		c.Check(r.CheckedAt.Equal(s.clk.Now()), gc.Equals, true)
	}

	// Only the https link needs a live check.
	c.Assert(s.fetcher.callCount("https://good.com"), gc.Equals, 1)
}

func (s *EngineTestSuite) TestSweepKeepsRawLinkValues(c *gc.C) {
	s.publish("42", `<a href=" https://good.com ">padded</a>`)

	res, err := s.newEngine(c, false).Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(res.NewLinks, gc.Equals, 1)

	records := s.storedRecords(c)
	c.Assert(records, gc.HasLen, 1)
	c.Assert(records[0].URL, gc.Equals, " https://good.com ")
	c.Assert(records[0].Status, gc.Equals, validator.StatusMalformed)
	c.Assert(s.fetcher.callCount("https://good.com"), gc.Equals, 0)
	c.Assert(s.fetcher.callCount(" https://good.com "), gc.Equals, 0)
}

func (s *EngineTestSuite) TestSweepBoundsConcurrentChecks(c *gc.C) {
	var body string
	for i := 0; i < 10; i++ {
		link := fmt.Sprintf("https://site%d.com", i)
		s.fetcher.codes[link] = 200
		body += fmt.Sprintf(`<a href="%s">%d</a>`, link, i)
	}
	s.publish("1", body)
	s.fetcher.delay = 20 * time.Millisecond

	e, err := NewEngine(Config{
		Source:  s.source,
		Fetcher: s.fetcher,
		Store:   s.store,
		Clock:   s.clk,
		Workers: 2,
	})
	c.Assert(err, gc.IsNil)

	res, err := e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(res.Checked, gc.Equals, 10)
	c.Assert(s.fetcher.peakInFlight() <= 2, gc.Equals, true, gc.Commentf("peak in-flight fetches: %d", s.fetcher.peakInFlight()))
	c.Assert(s.fetcher.peakInFlight() > 0, gc.Equals, true)
}

func (s *EngineTestSuite) TestSweepGroupsSharedLinks(c *gc.C) {
	s.publish("1", `<a href="https://gone.com">x</a><a href="http://a.com">y</a>`)
	s.publish("2", `<a href="https://gone.com">x</a><a href="https://gone.com">again</a>`)
	s.publish("3", `<a href="https://broken.com">z</a>`)
	s.source.Put(&content.Item{ID: "4", Body: `<a href="http://draft.com">d</a>`, Status: content.StatusDraft})

	res, err := s.newEngine(c, false).Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(res.NewLinks, gc.Equals, 4)

	var summary []string
	for _, g := range res.Groups {
		summary = append(summary, g.URL+" "+string(g.Status)+" "+joinIDs(g.ContentIDs))
	}
	c.Assert(summary, gc.DeepEquals, []string{
		"https://gone.com 410 Gone 1,2",
		"http://a.com Unsafe link 1",
		"https://broken.com 500 Internal Server Error 3",
	})
}

func (s *EngineTestSuite) TestSweepSkipsKnownContent(c *gc.C) {
	s.publish("42", `<a href="http://a.com">a</a>`)
	s.publish("7", `<a href="https://good.com">fine</a>`)
	e := s.newEngine(c, false)

	res, err := e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(res.NewLinks, gc.Equals, 1)
	c.Assert(res.Scanned, gc.Equals, 2)

	// Item 42 still owns fresh records so it is skipped. Item 7 has no
	// bad links and is scanned again.
	s.clk.Advance(time.Hour)
	res, err = e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(res.NewLinks, gc.Equals, 0)
	c.Assert(res.Scanned, gc.Equals, 1)
	c.Assert(res.Groups, gc.HasLen, 0)
	c.Assert(s.fetcher.callCount("https://good.com"), gc.Equals, 2)
	c.Assert(s.storedRecords(c), gc.HasLen, 1)
}

func (s *EngineTestSuite) TestSweepRevalidatesStaleContent(c *gc.C) {
	s.publish("42", `<a href="http://a.com">a</a><a href="https://gone.com">b</a>`)
	e := s.newEngine(c, false)

	_, err := e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	firstCheck := s.clk.Now()

	// The gone link got fixed in the meantime.
	s.publish("42", `<a href="http://a.com">a</a><a href="https://good.com">b</a>`)

	s.clk.Advance(3 * 24 * time.Hour)
	res, err := e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(res.Purged, gc.Equals, 0)
	c.Assert(res.Scanned, gc.Equals, 0)
	c.Assert(s.storedRecords(c), gc.HasLen, 2)

	s.clk.Advance(2 * 24 * time.Hour)
	res, err = e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(res.Purged, gc.Equals, 1)
	c.Assert(res.Scanned, gc.Equals, 1)
	c.Assert(res.NewLinks, gc.Equals, 1)

	records := s.storedRecords(c)
	c.Assert(records, gc.HasLen, 1)
	c.Assert(records[0].URL, gc.Equals, "http://a.com")
	c.Assert(records[0].CheckedAt.After(firstCheck), gc.Equals, true)
}

func (s *EngineTestSuite) TestSweepInProgress(c *gc.C) {
	s.publish("1", `<a href="https://slow.com">s</a>`)
	s.fetcher.block = make(chan struct{})
	s.fetcher.entered = make(chan struct{}, 1)
	e := s.newEngine(c, false)

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Sweep(context.TODO())
		errCh <- err
	}()

	select {
	case <-s.fetcher.entered:
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for the first sweep to start checking links")
	}

	res, err := e.Sweep(context.TODO())
	c.Assert(err, gc.Equals, ErrSweepInProgress)
	c.Assert(res, gc.IsNil)

	close(s.fetcher.block)
	c.Assert(<-errCh, gc.IsNil)

	// The guard is released once the sweep completes.
	_, err = e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
}

func (s *EngineTestSuite) TestSweepCancelled(c *gc.C) {
	s.publish("42", `<a href="http://a.com">a</a>`)

	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()

	_, err := s.newEngine(c, false).Sweep(ctx)
	c.Assert(errors.Is(err, context.Canceled), gc.Equals, true)
	c.Assert(s.storedRecords(c), gc.HasLen, 0)
}

func (s *EngineTestSuite) TestSweepStoreFailure(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	errBoom := errors.New("boom")
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().StaleContentIDs(gomock.Any(), s.clk.Now().Add(-defaultStaleAfter)).Return(nil, nil)
	store.EXPECT().ContentIDs(gomock.Any()).Return(nil, nil)
	store.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(false, errBoom)

	s.publish("42", `<a href="http://a.com">a</a><a href="http://b.com">b</a>`)
	e, err := NewEngine(Config{Source: s.source, Fetcher: s.fetcher, Store: store, Clock: s.clk})
	c.Assert(err, gc.IsNil)

	_, err = e.Sweep(context.TODO())
	c.Assert(errors.Is(err, errBoom), gc.Equals, true)
}

func (s *EngineTestSuite) TestSweepSourceFailure(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	errBoom := errors.New("boom")
	source := mocks.NewMockContentSource(ctrl)
	source.EXPECT().Published(gomock.Any(), gomock.Any()).Return(nil, errBoom)

	e, err := NewEngine(Config{Source: source, Fetcher: s.fetcher, Store: s.store, Clock: s.clk})
	c.Assert(err, gc.IsNil)

	_, err = e.Sweep(context.TODO())
	c.Assert(errors.Is(err, errBoom), gc.Equals, true)
}

func (s *EngineTestSuite) TestUpdateReplacesRecords(c *gc.C) {
	s.publish("42", `<a href="http://a.com">a</a><a href="https://gone.com">b</a>`)
	s.publish("7", `<a href="http://other.com">o</a>`)
	e := s.newEngine(c, true)

	_, err := e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(s.storedRecords(c), gc.HasLen, 3)

	s.publish("42", `<a href="http://c.com">c</a><a href="https://good.com">g</a>`)
	c.Assert(e.Update(context.TODO(), "42"), gc.IsNil)

	var got []string
	for _, r := range s.storedRecords(c) {
		got = append(got, r.ContentID+" "+r.URL)
	}
	sort.Strings(got)
	c.Assert(got, gc.DeepEquals, []string{"42 http://c.com", "7 http://other.com"})
}

func (s *EngineTestSuite) TestUpdateRemovesFixedLinks(c *gc.C) {
	s.publish("42", `<a href="http://a.com">a</a>`)
	e := s.newEngine(c, true)

	_, err := e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)

	s.publish("42", `<a href="https://good.com">a</a>`)
	c.Assert(e.Update(context.TODO(), "42"), gc.IsNil)
	c.Assert(s.storedRecords(c), gc.HasLen, 0)
}

func (s *EngineTestSuite) TestUpdateSkipsDrafts(c *gc.C) {
	s.publish("42", `<a href="http://a.com">a</a>`)
	e := s.newEngine(c, true)

	_, err := e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)

	for _, status := range []string{content.StatusDraft, content.StatusAutoDraft} {
		s.source.Put(&content.Item{ID: "42", Body: `<a href="http://new.com">n</a>`, Status: status})
		c.Assert(e.Update(context.TODO(), "42"), gc.IsNil)

		records := s.storedRecords(c)
		c.Assert(records, gc.HasLen, 1)
		c.Assert(records[0].URL, gc.Equals, "http://a.com")
	}
}

func (s *EngineTestSuite) TestUpdateDisabled(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	// Any call to the source or the store fails the test.
	e, err := NewEngine(Config{
		Source:  mocks.NewMockContentSource(ctrl),
		Fetcher: mocks.NewMockStatusFetcher(ctrl),
		Store:   mocks.NewMockStore(ctrl),
	})
	c.Assert(err, gc.IsNil)
	c.Assert(e.Update(context.TODO(), "42"), gc.IsNil)
}

func (s *EngineTestSuite) TestUpdateMissingContent(c *gc.C) {
	err := s.newEngine(c, true).Update(context.TODO(), "404")
	c.Assert(errors.Is(err, content.ErrNotFound), gc.Equals, true)
}

func (s *EngineTestSuite) TestUpdateStoreFailureKeepsRecords(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	errBoom := errors.New("boom")
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().ReplaceContent(gomock.Any(), "42", gomock.Len(1)).Return(0, errBoom)

	s.publish("42", `<a href="http://a.com">a</a>`)
	e, err := NewEngine(Config{Source: s.source, Fetcher: s.fetcher, Store: store, Clock: s.clk, UpdateOnSave: true})
	c.Assert(err, gc.IsNil)

	err = e.Update(context.TODO(), "42")
	c.Assert(errors.Is(err, errBoom), gc.Equals, true)
}

func (s *EngineTestSuite) TestReport(c *gc.C) {
	s.publish("1", `<a href="http://a.com">a</a>`)
	e := s.newEngine(c, false)

	_, err := e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)

	s.publish("2", `<a href="http://a.com">a</a><a href="ftp://b">b</a>`)
	_, err = e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)

	groups, err := e.Report(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(groups, gc.HasLen, 2)
	c.Assert(groups[0].URL, gc.Equals, "http://a.com")
	c.Assert(groups[0].ContentIDs, gc.DeepEquals, []string{"1", "2"})
	c.Assert(groups[1].URL, gc.Equals, "ftp://b")
	c.Assert(groups[1].ContentIDs, gc.DeepEquals, []string{"2"})
}

func (s *EngineTestSuite) TestClearAll(c *gc.C) {
	s.publish("42", `<a href="http://a.com">a</a>`)
	e := s.newEngine(c, false)

	_, err := e.Sweep(context.TODO())
	c.Assert(err, gc.IsNil)

	c.Assert(e.ClearAll(context.TODO()), gc.Equals, true)
	c.Assert(s.storedRecords(c), gc.HasLen, 0)
}

func (s *EngineTestSuite) TestClearAllFailure(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Clear(gomock.Any()).Return(errors.New("boom"))

	e, err := NewEngine(Config{Source: s.source, Fetcher: s.fetcher, Store: store})
	c.Assert(err, gc.IsNil)
	c.Assert(e.ClearAll(context.TODO()), gc.Equals, false)
}

func (s *EngineTestSuite) publish(id, body string) {
	s.source.Put(&content.Item{ID: id, Body: body, Status: content.StatusPublished})
}

func (s *EngineTestSuite) storedRecords(c *gc.C) []*validator.Record {
	it, err := s.store.Records(context.TODO())
	c.Assert(err, gc.IsNil)
	records, err := validator.Collect(it)
	c.Assert(err, gc.IsNil)
	return records
}

func joinIDs(ids []string) string {
	var out string
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}

// stubFetcher answers with canned status codes. Unknown URLs fail like an
// unreachable host.
type stubFetcher struct {
	codes map[string]int

	// When set, every fetch signals entered and waits for block to close.
	block   chan struct{}
	entered chan struct{}

	// Optional latency added to every fetch.
	delay time.Duration

	mu       sync.Mutex
	calls    map[string]int
	inFlight int
	peak     int
}

func (f *stubFetcher) FetchStatus(ctx context.Context, url string) (int, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.block != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	code, ok := f.codes[url]
	if !ok {
		return 0, errors.New("no such host")
	}
	return code, nil
}

func (f *stubFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *stubFetcher) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}
