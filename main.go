package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ejacobg/link-validator/cdb"
	"github.com/ejacobg/link-validator/checker"
	"github.com/ejacobg/link-validator/frontend"
	"github.com/ejacobg/link-validator/inmem"
	"github.com/ejacobg/link-validator/redis"
	"github.com/ejacobg/link-validator/service"
	"github.com/ejacobg/link-validator/validator"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"
)

var (
	appName = "link-validator"
	appSha  = "populated-at-link-time"
)

func main() {
	host, _ := os.Hostname()
	rootLogger := logrus.New()
	logger := rootLogger.WithFields(logrus.Fields{
		"app":  appName,
		"sha":  appSha,
		"host": host,
	})

	if err := newApp(logger).Run(os.Args); err != nil {
		logger.WithField("err", err).Error("shutting down due to error")
		os.Exit(1)
	}
}

func newApp(logger *logrus.Entry) *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "find and track the bad links embedded in published content"
	app.Version = appSha
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "store-uri",
			Value:  "in-memory://",
			EnvVar: "STORE_URI",
			Usage:  "The URI for connecting to the record store (supported URIs: in-memory://, postgresql://user@host:26257/linkvalidator?sslmode=disable, redis://host:6379/0)",
		},
		cli.StringFlag{
			Name:   "content-uri",
			Value:  "in-memory://",
			EnvVar: "CONTENT_URI",
			Usage:  "The URI for reading content items (supported URIs: in-memory://, file:///path/to/items.json, postgresql://user@host:26257/content?sslmode=disable)",
		},
		cli.StringFlag{
			Name:   "listen-addr",
			Value:  ":8080",
			EnvVar: "LISTEN_ADDR",
			Usage:  "The address to listen for incoming operator requests",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			EnvVar: "LOG_LEVEL",
			Usage:  "The log level (debug, info, warn, error)",
		},
		cli.IntFlag{
			Name:   "workers",
			Value:  runtime.NumCPU(),
			EnvVar: "CHECK_WORKERS",
			Usage:  "The number of workers to use for checking links (defaults to number of CPUs)",
		},
		cli.DurationFlag{
			Name:   "check-timeout",
			Value:  10 * time.Second,
			EnvVar: "CHECK_TIMEOUT",
			Usage:  "The maximum time to wait for a single live link check",
		},
		cli.DurationFlag{
			Name:   "stale-after",
			Value:  4 * 24 * time.Hour,
			EnvVar: "STALE_AFTER",
			Usage:  "The age after which stored records are purged and their content is checked again",
		},
		cli.DurationFlag{
			Name:   "sweep-interval",
			Value:  time.Hour,
			EnvVar: "SWEEP_INTERVAL",
			Usage:  "The time between subsequent periodic sweeps",
		},
		cli.BoolFlag{
			Name:   "sweep-enable",
			EnvVar: "SWEEP_ENABLE",
			Usage:  "Run a full sweep every sweep-interval while serving",
		},
		cli.BoolFlag{
			Name:   "on-save-enable",
			EnvVar: "ON_SAVE_ENABLE",
			Usage:  "Re-validate content items when they are saved",
		},
	}
	app.Before = func(c *cli.Context) error {
		lvl, err := logrus.ParseLevel(c.GlobalString("log-level"))
		if err != nil {
			return err
		}
		logger.Logger.SetLevel(lvl)
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "serve the operator API and, if enabled, run periodic sweeps",
			Action: func(c *cli.Context) error { return runServe(c, logger) },
		},
		{
			Name:  "sweep",
			Usage: "run a single full sweep and print the bad links it found",
			Action: func(c *cli.Context) error {
				return withEngine(c, logger, func(ctx context.Context, e *checker.Engine, d *frontend.Describer) error {
					res, err := e.Sweep(ctx)
					if err != nil {
						return err
					}
					return printJSON(os.Stdout, d.Sweep(ctx, res))
				})
			},
		},
		{
			Name:      "update",
			Usage:     "re-validate a single content item",
			ArgsUsage: "CONTENT_ID",
			Action: func(c *cli.Context) error {
				id := c.Args().First()
				if id == "" {
					return fmt.Errorf("a content ID must be specified")
				}
				if !c.GlobalBool("on-save-enable") {
					logger.Warn("updates are disabled; pass --on-save-enable to enable them")
				}
				return withEngine(c, logger, func(ctx context.Context, e *checker.Engine, _ *frontend.Describer) error {
					return e.Update(ctx, id)
				})
			},
		},
		{
			Name:  "clear",
			Usage: "remove every stored record",
			Action: func(c *cli.Context) error {
				return withEngine(c, logger, func(ctx context.Context, e *checker.Engine, _ *frontend.Describer) error {
					if !e.ClearAll(ctx) {
						return fmt.Errorf("unable to clear stored records")
					}
					return nil
				})
			},
		},
		{
			Name:  "report",
			Usage: "print every stored record grouped by URL",
			Action: func(c *cli.Context) error {
				return withEngine(c, logger, func(ctx context.Context, e *checker.Engine, d *frontend.Describer) error {
					groups, err := e.Report(ctx)
					if err != nil {
						return err
					}
					return printJSON(os.Stdout, d.Groups(ctx, groups))
				})
			},
		},
	}
	return app
}

func runServe(c *cli.Context, logger *logrus.Entry) error {
	b, err := newBackends(c, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := newEngine(c, b, checker.NewMetrics(registry), logger)
	if err != nil {
		return err
	}

	var svcGroup service.Group
	svc, err := frontend.NewService(frontend.Config{
		Checker:    engine,
		Content:    b.source,
		ListenAddr: c.GlobalString("listen-addr"),
		Gatherer:   registry,
		Logger:     logger.WithField("service", "front-end"),
	})
	if err != nil {
		return err
	}
	svcGroup = append(svcGroup, svc)

	if c.GlobalBool("sweep-enable") {
		sweepSvc, err := checker.NewService(checker.ServiceConfig{
			Sweeper:        engine,
			Clock:          clock.WallClock,
			UpdateInterval: c.GlobalDuration("sweep-interval"),
			Logger:         logger.WithField("service", "link-checker"),
		})
		if err != nil {
			return err
		}
		svcGroup = append(svcGroup, sweepSvc)
	} else {
		logger.Info("periodic sweeps are disabled")
	}

	ctx, cancelFn := signalContext(logger)
	defer cancelFn()

	if err = svcGroup.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func withEngine(c *cli.Context, logger *logrus.Entry, fn func(context.Context, *checker.Engine, *frontend.Describer) error) error {
	b, err := newBackends(c, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	engine, err := newEngine(c, b, nil, logger)
	if err != nil {
		return err
	}

	ctx, cancelFn := signalContext(logger)
	defer cancelFn()
	return fn(ctx, engine, frontend.NewDescriber(b.source, logger))
}

func newEngine(c *cli.Context, b *backends, metrics *checker.Metrics, logger *logrus.Entry) (*checker.Engine, error) {
	return checker.NewEngine(checker.Config{
		Source:       b.source,
		Fetcher:      checker.NewHTTPFetcher(&http.Client{}, appName+"/"+appSha),
		Store:        b.store,
		Clock:        clock.WallClock,
		Workers:      c.GlobalInt("workers"),
		CheckTimeout: c.GlobalDuration("check-timeout"),
		StaleAfter:   c.GlobalDuration("stale-after"),
		UpdateOnSave: c.GlobalBool("on-save-enable"),
		Metrics:      metrics,
		Logger:       logger.WithField("component", "engine"),
	})
}

// signalContext returns a context that is cancelled on SIGINT or SIGHUP.
func signalContext(logger *logrus.Entry) (context.Context, context.CancelFunc) {
	ctx, cancelFn := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP)
		defer signal.Stop(sigCh)
		select {
		case s := <-sigCh:
			logger.WithField("signal", s.String()).Infof("shutting down due to signal")
			cancelFn()
		case <-ctx.Done():
		}
	}()
	return ctx, cancelFn
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// backends bundles the record store and the content source selected on the
// command line along with anything that must be closed on exit.
type backends struct {
	store   validator.Store
	source  checker.ContentSource
	closers []io.Closer
}

func (b *backends) Close() {
	for _, c := range b.closers {
		_ = c.Close()
	}
}

func newBackends(c *cli.Context, logger *logrus.Entry) (*backends, error) {
	b := new(backends)
	store, err := getStore(c.GlobalString("store-uri"), logger)
	if err != nil {
		return nil, err
	}
	b.store = store
	if closer, ok := store.(io.Closer); ok {
		b.closers = append(b.closers, closer)
	}

	source, err := getContentSource(c.GlobalString("content-uri"), logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.source = source
	if closer, ok := source.(io.Closer); ok {
		b.closers = append(b.closers, closer)
	}
	return b, nil
}

func getStore(storeURI string, logger *logrus.Entry) (validator.Store, error) {
	if storeURI == "" {
		return nil, fmt.Errorf("record store URI must be specified with --store-uri")
	}

	uri, err := url.Parse(storeURI)
	if err != nil {
		return nil, fmt.Errorf("could not parse record store URI: %w", err)
	}

	switch uri.Scheme {
	case "in-memory":
		logger.Info("using in-memory record store")
		return inmem.NewStore(), nil
	case "postgresql":
		logger.Info("using CDB record store")
		return cdb.NewStore(storeURI)
	case "redis", "rediss":
		logger.Info("using redis record store")
		return redis.NewStore(storeURI)
	default:
		return nil, fmt.Errorf("unsupported record store URI scheme: %q", uri.Scheme)
	}
}

func getContentSource(contentURI string, logger *logrus.Entry) (checker.ContentSource, error) {
	if contentURI == "" {
		return nil, fmt.Errorf("content URI must be specified with --content-uri")
	}

	uri, err := url.Parse(contentURI)
	if err != nil {
		return nil, fmt.Errorf("could not parse content URI: %w", err)
	}

	switch uri.Scheme {
	case "in-memory":
		logger.Info("using empty in-memory content source")
		return inmem.NewContentSource(), nil
	case "file":
		logger.WithField("path", uri.Path).Info("using file content source")
		return inmem.LoadContentSource(uri.Path)
	case "postgresql":
		logger.Info("using CDB content source")
		return cdb.NewContentSource(contentURI)
	default:
		return nil, fmt.Errorf("unsupported content URI scheme: %q", uri.Scheme)
	}
}
