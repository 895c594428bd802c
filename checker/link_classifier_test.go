package checker

import (
	"context"
	"errors"
	"github.com/ejacobg/link-validator/checker/mocks"
	"github.com/ejacobg/link-validator/validator"
	"github.com/golang/mock/gomock"
	gc "gopkg.in/check.v1"
	"time"
)

var _ = gc.Suite(new(LinkClassifierTestSuite))

type LinkClassifierTestSuite struct{}

func (s *LinkClassifierTestSuite) TestSyntacticRules(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	// None of these links may reach the fetcher.
	classifier := NewClassifier(mocks.NewMockStatusFetcher(ctrl), time.Second)

	specs := []struct {
		link string
		exp  validator.Status
	}{
		{"http://a.com", validator.StatusUnsafe},
		{"HTTP://A.COM/path", validator.StatusUnsafe},
		{"http://", validator.StatusUnsafe},
		{"ftp://b", validator.StatusUnspecifiedProtocol},
		{"//google.com", validator.StatusUnspecifiedProtocol},
		{"/relative/page", validator.StatusUnspecifiedProtocol},
		{"mailto:someone@example.com", validator.StatusUnspecifiedProtocol},
		{"www.example.com", validator.StatusUnspecifiedProtocol},
		{"https:/example.com", validator.StatusUnspecifiedProtocol},
		{"https://", validator.StatusMalformed},
		{"https://exa mple.com", validator.StatusMalformed},
		{" https://good.com ", validator.StatusMalformed},
		{"https://good.com\n", validator.StatusMalformed},
		{" http://a.com", validator.StatusUnspecifiedProtocol},
		{"https://example.com/\x7f", validator.StatusMalformed},
		{"https://-bad-.com", validator.StatusMalformed},
		{"https://a..b", validator.StatusMalformed},
		{"https://%zz", validator.StatusMalformed},
		{"https://exam!ple.com", validator.StatusMalformed},
	}

	for specIndex, spec := range specs {
		c.Logf("[spec %d] %q", specIndex, spec.link)
		c.Check(classifier.Classify(context.TODO(), spec.link), gc.Equals, spec.exp)
	}
}

func (s *LinkClassifierTestSuite) TestLiveStatus(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	fetcher := mocks.NewMockStatusFetcher(ctrl)
	classifier := NewClassifier(fetcher, time.Second)

	specs := []struct {
		code int
		err  error
		exp  validator.Status
	}{
		{code: 200, exp: validator.StatusOK},
		{code: 301, exp: "301 Moved Permanently"},
		{code: 404, exp: validator.StatusNotFound},
		{code: 410, exp: "410 Gone"},
		{code: 500, exp: "500 Internal Server Error"},
		{code: 999, exp: validator.StatusIncorrectStatusCode},
		{code: 0, exp: validator.StatusIncorrectStatusCode},
		{code: -1, exp: validator.StatusIncorrectStatusCode},
		{err: errors.New("connection refused"), exp: validator.StatusNotFound},
		{err: context.DeadlineExceeded, exp: validator.StatusNotFound},
	}

	for specIndex, spec := range specs {
		c.Logf("[spec %d] code=%d err=%v", specIndex, spec.code, spec.err)
		fetcher.EXPECT().FetchStatus(gomock.Any(), "https://example.com").Return(spec.code, spec.err)
		c.Check(classifier.Classify(context.TODO(), "https://example.com"), gc.Equals, spec.exp)
	}
}

func (s *LinkClassifierTestSuite) TestLiveCheckHasDeadline(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	timeout := 250 * time.Millisecond
	fetcher := mocks.NewMockStatusFetcher(ctrl)
	fetcher.EXPECT().FetchStatus(gomock.Any(), "https://EXAMPLE.com/a?b=c").DoAndReturn(
		func(ctx context.Context, _ string) (int, error) {
			deadline, ok := ctx.Deadline()
			c.Check(ok, gc.Equals, true)
			c.Check(time.Until(deadline) <= timeout, gc.Equals, true)
			return 200, nil
		},
	)

	classifier := NewClassifier(fetcher, timeout)
	c.Assert(classifier.Classify(context.TODO(), "https://EXAMPLE.com/a?b=c"), gc.Equals, validator.StatusOK)
}

func (s *LinkClassifierTestSuite) TestMixedCaseSecurePrefix(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	fetcher := mocks.NewMockStatusFetcher(ctrl)
	fetcher.EXPECT().FetchStatus(gomock.Any(), "HTTPS://example.com").Return(200, nil)

	classifier := NewClassifier(fetcher, time.Second)
	c.Assert(classifier.Classify(context.TODO(), "HTTPS://example.com"), gc.Equals, validator.StatusOK)
}
