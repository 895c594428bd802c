package checker

import (
	"context"
	"errors"
	"fmt"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"io"
	"time"
)

// Sweeper is implemented by objects that can run a full sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (*SweepResult, error)
}

// ServiceConfig encapsulates the settings for configuring the periodic
// sweep service.
type ServiceConfig struct {
	// The engine that performs each sweep.
	Sweeper Sweeper

	// The clock instance to use. Defaults to the wall clock.
	Clock clock.Clock

	// The time between subsequent sweeps.
	UpdateInterval time.Duration

	// The logger to use. Defaults to a logger that discards output.
	Logger *logrus.Entry
}

func (cfg *ServiceConfig) validate() error {
	var err error
	if cfg.Sweeper == nil {
		err = multierror.Append(err, fmt.Errorf("sweeper has not been provided"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.UpdateInterval <= 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for update interval"))
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		cfg.Logger = logrus.NewEntry(l)
	}
	return err
}

// Service runs a full sweep every UpdateInterval.
type Service struct {
	cfg ServiceConfig
}

// NewService creates a new periodic sweep service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("link checker service: config validation failed: %w", err)
	}
	return &Service{cfg: cfg}, nil
}

// Name implements service.Service
func (svc *Service) Name() string { return "link-checker" }

// Run implements service.Service. A failed sweep is logged and retried on
// the next tick.
func (svc *Service) Run(ctx context.Context) error {
	svc.cfg.Logger.WithField("update_interval", svc.cfg.UpdateInterval.String()).Info("starting service")
	defer svc.cfg.Logger.Info("stopped service")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-svc.cfg.Clock.After(svc.cfg.UpdateInterval):
			_, err := svc.cfg.Sweeper.Sweep(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrSweepInProgress):
				svc.cfg.Logger.Warn("previous sweep still running; skipping tick")
			case ctx.Err() != nil:
				return nil
			default:
				svc.cfg.Logger.WithField("err", err).Error("scheduled sweep failed")
			}
		}
	}
}
