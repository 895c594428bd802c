package checker

import (
	"context"
	"errors"
	"github.com/juju/clock/testclock"
	gc "gopkg.in/check.v1"
	"time"
)

var _ = gc.Suite(new(ServiceTestSuite))

type ServiceTestSuite struct{}

func (s *ServiceTestSuite) TestConfigValidation(c *gc.C) {
	_, err := NewService(ServiceConfig{})
	c.Assert(err, gc.ErrorMatches, "(?s).*sweeper has not been provided.*invalid value for update interval.*")
}

func (s *ServiceTestSuite) TestSweepsOnEveryTick(c *gc.C) {
	clk := testclock.NewClock(time.Now())
	sweeper := &fakeSweeper{
		calls: make(chan struct{}, 3),
		errs:  []error{errors.New("boom"), ErrSweepInProgress, nil},
	}

	svc, err := NewService(ServiceConfig{
		Sweeper:        sweeper,
		Clock:          clk,
		UpdateInterval: time.Minute,
	})
	c.Assert(err, gc.IsNil)
	c.Assert(svc.Name(), gc.Equals, "link-checker")

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	doneCh := make(chan error, 1)
	go func() { doneCh <- svc.Run(ctx) }()

	// Failed sweeps do not stop the service.
	for i := 0; i < 3; i++ {
		c.Assert(clk.WaitAdvance(time.Minute, 10*time.Second, 1), gc.IsNil)
		select {
		case <-sweeper.calls:
		case <-time.After(10 * time.Second):
			c.Fatalf("timed out waiting for sweep %d", i)
		}
	}

	cancelFn()
	select {
	case err = <-doneCh:
		c.Assert(err, gc.IsNil)
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for service to exit")
	}
}

type fakeSweeper struct {
	calls chan struct{}
	errs  []error
}

func (f *fakeSweeper) Sweep(context.Context) (*SweepResult, error) {
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.calls <- struct{}{}
	if err != nil {
		return nil, err
	}
	return new(SweepResult), nil
}
