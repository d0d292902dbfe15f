package meterdock

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/meterdock/meterdock/internal/config"
	"github.com/meterdock/meterdock/internal/execution"
	"github.com/meterdock/meterdock/internal/installation"
	"github.com/meterdock/meterdock/internal/logger"
	"github.com/meterdock/meterdock/internal/metrics"
	"github.com/meterdock/meterdock/internal/orchestrator"
	"github.com/meterdock/meterdock/internal/planstore"
	"github.com/meterdock/meterdock/internal/report"
	iapi "github.com/meterdock/meterdock/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Record = execution.Record

type State = execution.State

type Plan = planstore.Plan

type Summary = report.Summary

type InstallationStatus = installation.Status

type VerifyResult = installation.VerifyResult

type Config = cfg.Config

// ErrActiveExecutions is returned when installation changes are refused
// because executions are queued or running.
var ErrActiveExecutions = orchestrator.ErrActiveExecutions

// Service is a thin facade over the internal orchestrator.
// It provides a stable public API for embedding.
type Service struct{ inner *orchestrator.Orchestrator }

func New(c Config) (*Service, error) {
	o, err := orchestrator.New(c)
	if err != nil {
		return nil, err
	}
	return &Service{inner: o}, nil
}

func (s *Service) Start(ctx context.Context) error { return s.inner.Start(ctx) }
func (s *Service) Stop() error                     { return s.inner.Stop() }

func (s *Service) Submit(planID string) (Record, error) { return s.inner.Submit(planID) }
func (s *Service) Get(id string) (Record, error)        { return s.inner.Get(id) }
func (s *Service) List() []Record                       { return s.inner.List() }
func (s *Service) HasActive() bool                      { return s.inner.HasActive() }

func (s *Service) UploadPlan(r io.Reader) (Plan, error) { return s.inner.UploadPlan(r) }
func (s *Service) ListPlans() ([]Plan, error)           { return s.inner.ListPlans() }

func (s *Service) Report(id string) ([]byte, error)   { return s.inner.Report(id) }
func (s *Service) Summary(id string) (Summary, error) { return s.inner.Summary(id) }

func (s *Service) InstallationStatus() InstallationStatus { return s.inner.InstallationStatus() }
func (s *Service) VerifyInstallation(ctx context.Context) VerifyResult {
	return s.inner.VerifyInstallation(ctx)
}
func (s *Service) InstallArchive(ctx context.Context, name string, r io.Reader) (InstallationStatus, error) {
	return s.inner.InstallArchive(ctx, name, r)
}
func (s *Service) ConfigureInstallation(ctx context.Context, path string) (InstallationStatus, error) {
	return s.inner.ConfigureInstallation(ctx, path)
}
func (s *Service) ClearInstallation(ctx context.Context) error {
	return s.inner.ClearInstallation(ctx)
}

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

func DefaultConfig() Config { return cfg.Default() }

// SetupLogging installs the process-wide structured logger.
func SetupLogging(level string, noColor bool) { logger.Setup(level, noColor) }

// NewHTTPServer starts an HTTP server exposing the API using the given service.
func NewHTTPServer(addr, basePath string, s *Service) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner)
}

// NewTLSServer starts an HTTPS server exposing the API using the given
// service and the [server.tls] configuration.
func NewTLSServer(c Config, s *Service) (*http.Server, error) {
	return iapi.NewTLSServer(c.Server.Listen, c.Server.BasePath, c.Server.TLS, s.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it runs
// the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
