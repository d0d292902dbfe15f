package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meterdock/meterdock/internal/config"
	"github.com/meterdock/meterdock/internal/dispatch"
	"github.com/meterdock/meterdock/internal/env"
	"github.com/meterdock/meterdock/internal/execution"
	"github.com/meterdock/meterdock/internal/history"
	historyfactory "github.com/meterdock/meterdock/internal/history/factory"
	"github.com/meterdock/meterdock/internal/installation"
	"github.com/meterdock/meterdock/internal/installer"
	"github.com/meterdock/meterdock/internal/metrics"
	"github.com/meterdock/meterdock/internal/planstore"
	"github.com/meterdock/meterdock/internal/report"
	"github.com/meterdock/meterdock/internal/store"
	storefactory "github.com/meterdock/meterdock/internal/store/factory"
	"github.com/meterdock/meterdock/internal/supervisor"
)

// ErrActiveExecutions rejects installation changes while executions are
// queued or running. The running process depends on the active binaries.
var ErrActiveExecutions = errors.New("executions are queued or running")

// Orchestrator wires the execution pipeline together: plan storage,
// installation management, the admission-limited dispatcher, the per-run
// supervisor, report access and durable state. It is the single entry point
// the HTTP layer talks to.
type Orchestrator struct {
	cfg     config.Config
	st      store.Store
	reg     *execution.Registry
	inst    *installation.Manager
	distrib *installer.Installer
	plans   *planstore.Store
	reports *report.Manager
	disp    *dispatch.Dispatcher
	sinks   []history.Sink
}

// New builds the pipeline from configuration. Nothing runs until Start.
func New(cfg config.Config) (*Orchestrator, error) {
	st, err := storefactory.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	plans, err := planstore.New(cfg.PlansDir())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	reports, err := report.NewManager(cfg.ExecutionsDir())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	sinks, err := historyfactory.New(cfg.History.Sinks)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg := execution.NewRegistry()
	inst := installation.NewManager(st)
	sup := supervisor.New(reg, inst, plans, reports, cfg.LoggerConfig(), env.New(cfg.Execution.Env), st, sinks)
	disp := dispatch.New(reg, cfg.MaxConcurrent, sup.Run)

	return &Orchestrator{
		cfg:     cfg,
		st:      st,
		reg:     reg,
		inst:    inst,
		distrib: installer.New(),
		plans:   plans,
		reports: reports,
		disp:    disp,
		sinks:   sinks,
	}, nil
}

// Start restores durable state and begins dispatching: installation state,
// persisted execution history, then the dispatch loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.inst.Load(ctx); err != nil {
		return err
	}
	if err := o.restoreHistory(ctx); err != nil {
		return err
	}
	o.disp.Start()
	slog.Info("orchestrator started",
		"max_concurrent", o.disp.Limit(),
		"configured", o.inst.IsConfigured())
	return nil
}

// Stop halts dispatching, waits for in-flight executions and closes the
// durable store.
func (o *Orchestrator) Stop() error {
	o.disp.Stop()
	return o.st.Close()
}

// restoreHistory reloads persisted terminal records into the registry so
// past executions stay queryable across restarts.
func (o *Orchestrator) restoreHistory(ctx context.Context) error {
	recs, err := o.st.List(ctx, supervisor.RecordKeyPrefix)
	if err != nil {
		return fmt.Errorf("load execution history: %w", err)
	}
	n := 0
	for _, r := range recs {
		rec, err := supervisor.UnmarshalRecord(r.Value)
		if err != nil {
			slog.Warn("skip undecodable execution record", "key", r.Key, "err", err)
			continue
		}
		o.reg.Restore(rec)
		n++
	}
	if n > 0 {
		slog.Info("restored execution history", "count", n)
	}
	return nil
}

// Submit enqueues a new execution of the given plan. The plan must exist;
// everything else (installation, process launch) is resolved at dispatch
// time and lands in the record, never as a submit error.
func (o *Orchestrator) Submit(planID string) (execution.Record, error) {
	if _, err := o.plans.Resolve(planID); err != nil {
		return execution.Record{}, err
	}
	rec := o.disp.Submit(planID)
	o.emitSubmitted(rec)
	return rec, nil
}

// emitSubmitted reports the QUEUED lifecycle step to the history sinks, best
// effort. Later steps are emitted by the supervisor.
func (o *Orchestrator) emitSubmitted(rec execution.Record) {
	if len(o.sinks) == 0 {
		return
	}
	evt := history.Event{Type: history.EventSubmitted, OccurredAt: time.Now().UTC(), Record: rec}
	for _, sink := range o.sinks {
		if err := sink.Send(context.Background(), evt); err != nil {
			slog.Warn("history sink send", "id", rec.ID, "err", err)
		}
	}
}

// Get returns a snapshot of one execution record.
func (o *Orchestrator) Get(id string) (execution.Record, error) { return o.reg.Get(id) }

// List returns snapshots of all known executions in submission order.
func (o *Orchestrator) List() []execution.Record { return o.reg.List() }

// HasActive reports whether any execution is queued or running.
func (o *Orchestrator) HasActive() bool { return o.reg.HasActive() }

// UploadPlan stores a new test plan and returns its id.
func (o *Orchestrator) UploadPlan(r io.Reader) (planstore.Plan, error) { return o.plans.Save(r) }

// ListPlans returns all stored plans.
func (o *Orchestrator) ListPlans() ([]planstore.Plan, error) { return o.plans.List() }

// Report returns the execution's dashboard report as a zip archive.
func (o *Orchestrator) Report(id string) ([]byte, error) { return o.reports.Package(id) }

// Summary returns the aggregate sample statistics for one execution.
func (o *Orchestrator) Summary(id string) (report.Summary, error) { return o.reports.Summarize(id) }

// InstallationStatus returns the current installation configuration.
func (o *Orchestrator) InstallationStatus() installation.Status { return o.inst.Status() }

// VerifyInstallation probes the configured installation.
func (o *Orchestrator) VerifyInstallation(ctx context.Context) installation.VerifyResult {
	return o.inst.Verify(ctx)
}

// InstallArchive extracts an uploaded distribution archive, activates it and
// points the installation at the result. Refused while executions are
// active. name is the uploaded filename; only its extension matters, for
// container format detection.
func (o *Orchestrator) InstallArchive(ctx context.Context, name string, r io.Reader) (installation.Status, error) {
	if o.reg.HasActive() {
		return installation.Status{}, ErrActiveExecutions
	}
	tmp, err := stageArchive(name, r)
	if err != nil {
		return installation.Status{}, err
	}
	defer func() { _ = os.Remove(tmp) }()

	path, err := o.distrib.Install(tmp, o.cfg.InstallDir())
	if err != nil {
		return installation.Status{}, err
	}
	if err := o.inst.Configure(ctx, path); err != nil {
		return installation.Status{}, err
	}
	metrics.IncInstall()
	return o.inst.Status(), nil
}

// ConfigureInstallation points the installation at an existing directory on
// the host, bypassing archive upload. Refused while executions are active.
func (o *Orchestrator) ConfigureInstallation(ctx context.Context, path string) (installation.Status, error) {
	if o.reg.HasActive() {
		return installation.Status{}, ErrActiveExecutions
	}
	if err := o.inst.Configure(ctx, path); err != nil {
		return installation.Status{}, err
	}
	return o.inst.Status(), nil
}

// ClearInstallation erases the installation configuration. Refused while
// executions are active; otherwise idempotent.
func (o *Orchestrator) ClearInstallation(ctx context.Context) error {
	if o.reg.HasActive() {
		return ErrActiveExecutions
	}
	return o.inst.Clear(ctx)
}

// stageArchive spools the uploaded stream to a temp file, keeping the
// original extension so the extractor can pick the container format.
func stageArchive(name string, r io.Reader) (string, error) {
	ext := ".zip"
	switch {
	case strings.HasSuffix(name, ".tgz"):
		ext = ".tgz"
	case strings.HasSuffix(name, ".tar.gz"):
		ext = ".tar.gz"
	}
	f, err := os.CreateTemp("", "meterdock-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return f.Name(), nil
}

// PlanPath resolves a plan id to its stored file. Used by handlers that
// stream plan content back.
func (o *Orchestrator) PlanPath(id string) (string, error) { return o.plans.Resolve(id) }

// ConsoleLogPath returns the merged stdout/stderr capture for an execution.
func (o *Orchestrator) ConsoleLogPath(id string) (string, error) {
	rec, err := o.reg.Get(id)
	if err != nil {
		return "", err
	}
	p := o.reports.ConsoleLogPath(rec.ID)
	if _, err := os.Stat(filepath.Clean(p)); err != nil {
		return "", fmt.Errorf("console log for %s: %w", id, execution.ErrNotFound)
	}
	return p, nil
}
