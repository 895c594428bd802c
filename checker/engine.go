// Package checker finds the links embedded in content items, classifies
// them and keeps the record store of bad links up to date.
package checker

//go:generate mockgen -package mocks -destination mocks/checker.go github.com/ejacobg/link-validator/checker ContentSource,StatusFetcher
//go:generate mockgen -package mocks -destination mocks/store.go github.com/ejacobg/link-validator/validator Store

import (
	"context"
	"errors"
	"fmt"
	"github.com/ejacobg/link-validator/content"
	"github.com/ejacobg/link-validator/pipeline"
	"github.com/ejacobg/link-validator/validator"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"io"
	"runtime"
	"sync/atomic"
	"time"
)

// ErrSweepInProgress is returned by Sweep when another sweep is running.
var ErrSweepInProgress = errors.New("sweep already in progress")

const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeSkipped  = "skipped"
	outcomeDraft    = "draft"
	outcomeDisabled = "disabled"
)

// ContentSource is implemented by objects that provide read-only access to
// content items.
type ContentSource interface {
	// Published returns every published item whose ID is not in exclude.
	Published(ctx context.Context, exclude []string) ([]*content.Item, error)

	// Get looks up an item by its ID, returning content.ErrNotFound if it
	// does not exist.
	Get(ctx context.Context, id string) (*content.Item, error)

	// IsDraft reports whether an item is in a draft-like state.
	IsDraft(ctx context.Context, id string) (bool, error)
}

// Config encapsulates the settings for an Engine.
type Config struct {
	// Source provides the content items to scan.
	Source ContentSource

	// Fetcher retrieves live HTTP status codes.
	Fetcher StatusFetcher

	// Store persists bad-link records.
	Store validator.Store

	// Clock used for timestamps and staleness. Defaults to the wall clock.
	Clock clock.Clock

	// Number of concurrent link checks. Defaults to the number of CPUs.
	Workers int

	// Upper bound for each live HTTP check. Defaults to 10 seconds.
	CheckTimeout time.Duration

	// Age after which stored records are purged and their content
	// re-scanned. Defaults to 4 days.
	StaleAfter time.Duration

	// UpdateOnSave enables Update. When false, Update is a no-op.
	UpdateOnSave bool

	// Optional Prometheus collectors.
	Metrics *Metrics

	// Logger to use. Defaults to a logger that discards output.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Source == nil {
		err = multierror.Append(err, fmt.Errorf("content source has not been provided"))
	}
	if cfg.Fetcher == nil {
		err = multierror.Append(err, fmt.Errorf("status fetcher has not been provided"))
	}
	if cfg.Store == nil {
		err = multierror.Append(err, fmt.Errorf("record store has not been provided"))
	}
	if cfg.Workers < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for worker count"))
	}
	if cfg.CheckTimeout < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for check timeout"))
	}
	if cfg.StaleAfter < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for stale-after threshold"))
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = defaultCheckTimeout
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		cfg.Logger = logrus.NewEntry(l)
	}
	return err
}

// SweepResult summarizes a full sweep.
type SweepResult struct {
	// Number of records actually inserted by this sweep.
	NewLinks int

	// Bad links found in this sweep, grouped by URL.
	Groups []*validator.Group

	// Content items purged for staleness before scanning.
	Purged int

	// Content items scanned.
	Scanned int

	// Links classified.
	Checked int
}

// Engine runs full sweeps and incremental updates against a record store.
type Engine struct {
	cfg        Config
	classifier *Classifier
	planner    *revalidationPlanner

	sweeping atomic.Bool
}

// NewEngine creates an Engine using the provided configuration.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("link checker config validation failed: %w", err)
	}

	return &Engine{
		cfg:        cfg,
		classifier: NewClassifier(cfg.Fetcher, cfg.CheckTimeout),
		planner: &revalidationPlanner{
			store:      cfg.Store,
			clock:      cfg.Clock,
			staleAfter: cfg.StaleAfter,
		},
	}, nil
}

// Sweep reconciles every published content item with the store. Stale
// records are purged first; content still represented in the store is
// skipped and everything else is scanned. Only one sweep runs at a time;
// overlapping calls return ErrSweepInProgress without doing any work.
func (e *Engine) Sweep(ctx context.Context) (*SweepResult, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		e.cfg.Metrics.sweepFinished(outcomeSkipped, 0)
		return nil, ErrSweepInProgress
	}
	defer e.sweeping.Store(false)

	var (
		start  = e.cfg.Clock.Now()
		logger = e.cfg.Logger.WithField("sweep_id", uuid.New().String())
	)
	logger.Info("starting sweep")

	res, err := e.sweep(ctx, logger)
	took := e.cfg.Clock.Now().Sub(start)
	if err != nil {
		e.cfg.Metrics.sweepFinished(outcomeFailure, took)
		logger.WithField("err", err).Error("sweep failed")
		return nil, err
	}

	e.cfg.Metrics.sweepFinished(outcomeSuccess, took)
	e.cfg.Metrics.linksInserted(res.NewLinks)
	logger.WithFields(logrus.Fields{
		"purged":    res.Purged,
		"scanned":   res.Scanned,
		"checked":   res.Checked,
		"bad":       len(res.Groups),
		"new_links": res.NewLinks,
		"took":      took.String(),
	}).Info("completed sweep")
	return res, nil
}

func (e *Engine) sweep(ctx context.Context, logger *logrus.Entry) (*SweepResult, error) {
	plan, err := e.planner.plan(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	if len(plan.purged) > 0 {
		logger.WithField("content_ids", plan.purged).Debug("purged stale records")
	}

	items, err := e.cfg.Source.Published(ctx, plan.known)
	if err != nil {
		return nil, fmt.Errorf("sweep: list content: %w", err)
	}

	records, checked, err := e.check(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	var newLinks int
	for _, r := range records {
		inserted, err := e.cfg.Store.InsertIfAbsent(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("sweep: %w", err)
		}
		if inserted {
			newLinks++
		}
	}

	return &SweepResult{
		NewLinks: newLinks,
		Groups:   validator.GroupByURL(records),
		Purged:   len(plan.purged),
		Scanned:  len(items),
		Checked:  checked,
	}, nil
}

// check extracts and classifies the links of items using a bounded worker
// pool. It returns the bad links in document order and the number of links
// that were classified.
func (e *Engine) check(ctx context.Context, items []*content.Item) ([]*validator.Record, int, error) {
	var (
		src  = newLinkSource(items)
		sink = new(badLinkSink)
		p    = pipeline.New(pipeline.FixedWorkerPool(
			newLinkClassifier(e.classifier, e.cfg.Clock, e.cfg.Metrics),
			e.cfg.Workers,
		))
	)

	if err := p.Process(ctx, src, sink); err != nil {
		return nil, 0, fmt.Errorf("check links: %w", err)
	}

	// A cancelled pipeline stops early without reporting an error; its
	// partial results must not be persisted.
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("check links: %w", err)
	}
	return sink.records(), len(src.links), nil
}

// Update re-validates a single content item after it has been saved and
// replaces its stored records with the bad links it now contains. It is a
// silent no-op when updates on save are disabled or the item is a draft.
func (e *Engine) Update(ctx context.Context, contentID string) error {
	logger := e.cfg.Logger.WithField("content_id", contentID)
	if !e.cfg.UpdateOnSave {
		e.cfg.Metrics.updateFinished(outcomeDisabled)
		return nil
	}

	draft, err := e.cfg.Source.IsDraft(ctx, contentID)
	if err != nil {
		e.cfg.Metrics.updateFinished(outcomeFailure)
		return fmt.Errorf("update %q: %w", contentID, err)
	}
	if draft {
		e.cfg.Metrics.updateFinished(outcomeDraft)
		logger.Debug("skipping draft content")
		return nil
	}

	inserted, err := e.update(ctx, contentID)
	if err != nil {
		e.cfg.Metrics.updateFinished(outcomeFailure)
		logger.WithField("err", err).Error("update failed")
		return err
	}

	e.cfg.Metrics.updateFinished(outcomeSuccess)
	e.cfg.Metrics.linksInserted(inserted)
	logger.WithField("bad_links", inserted).Info("updated content links")
	return nil
}

func (e *Engine) update(ctx context.Context, contentID string) (int, error) {
	item, err := e.cfg.Source.Get(ctx, contentID)
	if err != nil {
		return 0, fmt.Errorf("update %q: %w", contentID, err)
	}

	records, _, err := e.check(ctx, []*content.Item{item})
	if err != nil {
		return 0, fmt.Errorf("update %q: %w", contentID, err)
	}

	inserted, err := e.cfg.Store.ReplaceContent(ctx, contentID, records)
	if err != nil {
		return 0, fmt.Errorf("update %q: %w", contentID, err)
	}
	return inserted, nil
}

// Report returns every stored record grouped by URL.
func (e *Engine) Report(ctx context.Context) ([]*validator.Group, error) {
	it, err := e.cfg.Store.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	records, err := validator.Collect(it)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return validator.GroupByURL(records), nil
}

// ClearAll removes every stored record and reports whether it succeeded.
func (e *Engine) ClearAll(ctx context.Context) bool {
	if err := e.cfg.Store.Clear(ctx); err != nil {
		e.cfg.Logger.WithField("err", err).Error("failed to clear records")
		return false
	}
	e.cfg.Logger.Info("cleared all records")
	return true
}
