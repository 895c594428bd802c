// Package frontend exposes the link checker to operators over HTTP.
package frontend

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/ejacobg/link-validator/frontend LinkChecker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ejacobg/link-validator/checker"
	"github.com/ejacobg/link-validator/content"
	"github.com/ejacobg/link-validator/validator"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	sweepEndpoint    = "/api/sweep"
	validateEndpoint = "/api/content/{id}/validate"
	linksEndpoint    = "/api/links"
	metricsEndpoint  = "/metrics"
)

// Response statuses understood by operator tooling.
const (
	StatusAdded      = "ADDED"
	StatusNoNewLinks = "NO_NEW_LINKS"
	StatusInProgress = "IN_PROGRESS"
	StatusOK         = "OK"
	StatusFail       = "Fail"
	StatusError      = "ERROR"
)

// LinkChecker is implemented by objects that can run sweeps and updates
// and report on the stored bad links.
type LinkChecker interface {
	Sweep(ctx context.Context) (*checker.SweepResult, error)
	Update(ctx context.Context, contentID string) error
	Report(ctx context.Context) ([]*validator.Group, error)
	ClearAll(ctx context.Context) bool
}

// ContentGetter looks up content items by ID.
type ContentGetter interface {
	Get(ctx context.Context, id string) (*content.Item, error)
}

// Config encapsulates the settings for configuring the front-end service.
type Config struct {
	// The link checker that serves every request.
	Checker LinkChecker

	// Used to resolve the titles of the content items in a report.
	Content ContentGetter

	// The address to listen for incoming requests.
	ListenAddr string

	// Source of the metrics served under /metrics. If nil, the endpoint
	// is not registered.
	Gatherer prometheus.Gatherer

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Checker == nil {
		err = multierror.Append(err, fmt.Errorf("link checker has not been provided"))
	}
	if cfg.Content == nil {
		err = multierror.Append(err, fmt.Errorf("content getter has not been provided"))
	}
	if cfg.ListenAddr == "" {
		err = multierror.Append(err, fmt.Errorf("listen address has not been specified"))
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		cfg.Logger = logrus.NewEntry(l)
	}
	return err
}

// Service implements the operator HTTP surface.
type Service struct {
	cfg       Config
	router    *mux.Router
	describer *Describer
}

// NewService creates a new front-end service instance with the specified
// config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("front-end service: config validation failed: %w", err)
	}

	router := mux.NewRouter()
	svc := &Service{
		router:    router,
		cfg:       cfg,
		describer: NewDescriber(cfg.Content, cfg.Logger),
	}

	router.HandleFunc(sweepEndpoint, svc.sweep).Methods(http.MethodPost)
	router.HandleFunc(validateEndpoint, svc.validate).Methods(http.MethodPost)
	router.HandleFunc(linksEndpoint, svc.report).Methods(http.MethodGet)
	router.HandleFunc(linksEndpoint, svc.clear).Methods(http.MethodDelete)
	if cfg.Gatherer != nil {
		router.Handle(metricsEndpoint, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	router.NotFoundHandler = http.HandlerFunc(svc.notFound)
	return svc, nil
}

// Name implements service.Service
func (svc *Service) Name() string { return "front-end" }

// Run implements service.Service
func (svc *Service) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", svc.cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	srv := &http.Server{
		Addr:              svc.cfg.ListenAddr,
		Handler:           svc.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	svc.cfg.Logger.WithField("addr", svc.cfg.ListenAddr).Info("starting front-end server")
	if err = srv.Serve(l); errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (svc *Service) sweep(w http.ResponseWriter, r *http.Request) {
	res, err := svc.cfg.Checker.Sweep(r.Context())
	switch {
	case errors.Is(err, checker.ErrSweepInProgress):
		svc.writeJSON(w, http.StatusConflict, statusResponse{Status: StatusInProgress})
		return
	case err != nil:
		svc.cfg.Logger.WithField("err", err).Error("sweep request failed")
		svc.writeJSON(w, http.StatusInternalServerError, statusResponse{Status: StatusError, Error: err.Error()})
		return
	}

	svc.writeJSON(w, http.StatusOK, svc.describer.Sweep(r.Context(), res))
}

func (svc *Service) validate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := svc.cfg.Checker.Update(r.Context(), id)
	switch {
	case errors.Is(err, content.ErrNotFound):
		svc.writeJSON(w, http.StatusNotFound, statusResponse{Status: StatusError, Error: err.Error()})
	case err != nil:
		svc.writeJSON(w, http.StatusInternalServerError, statusResponse{Status: StatusError, Error: err.Error()})
	default:
		svc.writeJSON(w, http.StatusOK, statusResponse{Status: StatusOK})
	}
}

func (svc *Service) report(w http.ResponseWriter, r *http.Request) {
	groups, err := svc.cfg.Checker.Report(r.Context())
	if err != nil {
		svc.cfg.Logger.WithField("err", err).Error("report request failed")
		svc.writeJSON(w, http.StatusInternalServerError, statusResponse{Status: StatusError, Error: err.Error()})
		return
	}
	svc.writeJSON(w, http.StatusOK, svc.describer.Groups(r.Context(), groups))
}

func (svc *Service) clear(w http.ResponseWriter, r *http.Request) {
	if !svc.cfg.Checker.ClearAll(r.Context()) {
		svc.writeJSON(w, http.StatusInternalServerError, statusResponse{Status: StatusFail})
		return
	}
	svc.writeJSON(w, http.StatusOK, statusResponse{Status: StatusOK})
}

func (svc *Service) notFound(w http.ResponseWriter, _ *http.Request) {
	svc.writeJSON(w, http.StatusNotFound, statusResponse{Status: StatusError, Error: "not found"})
}

func (svc *Service) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		svc.cfg.Logger.WithField("err", err).Error("unable to encode response")
	}
}
