package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/meterdock/meterdock/internal/env"
	"github.com/meterdock/meterdock/internal/execution"
	"github.com/meterdock/meterdock/internal/history"
	"github.com/meterdock/meterdock/internal/installation"
	"github.com/meterdock/meterdock/internal/logger"
	"github.com/meterdock/meterdock/internal/metrics"
	"github.com/meterdock/meterdock/internal/planstore"
	"github.com/meterdock/meterdock/internal/report"
	"github.com/meterdock/meterdock/internal/store"
)

// RecordKeyPrefix namespaces terminal execution records in the durable store.
const RecordKeyPrefix = "execution/"

// Supervisor resolves one dispatched execution to a terminal state: it
// launches JMeter in non-GUI mode against the plan file, captures merged
// stdout/stderr, waits for exit, and records the outcome. It never retries
// and never returns an error to the submitter; failures land in the record.
type Supervisor struct {
	reg     *execution.Registry
	inst    *installation.Manager
	plans   *planstore.Store
	reports *report.Manager
	logCfg  logger.Config
	env     *env.Env
	st      store.Store
	sinks   []history.Sink
}

func New(reg *execution.Registry, inst *installation.Manager, plans *planstore.Store, reports *report.Manager, logCfg logger.Config, procEnv *env.Env, st store.Store, sinks []history.Sink) *Supervisor {
	if procEnv == nil {
		procEnv = env.New(nil)
	}
	return &Supervisor{
		reg:     reg,
		inst:    inst,
		plans:   plans,
		reports: reports,
		logCfg:  logCfg,
		env:     procEnv,
		st:      st,
		sinks:   sinks,
	}
}

// Run supervises the execution with the given id. It is invoked by the
// dispatcher on a dedicated goroutine; all blocking (process wait, output
// capture) is isolated here and holds no lock shared with the dispatcher or
// the registry.
func (s *Supervisor) Run(ctx context.Context, id string) {
	rec, err := s.reg.Get(id)
	if err != nil {
		slog.Error("dispatched unknown execution", "id", id, "err", err)
		return
	}

	// Fail fast before RUNNING: configuration and plan resolution.
	bin, ok := s.inst.ResolveBinaryPath()
	if !ok {
		s.fail(ctx, id, nil, execution.ErrNotConfigured.Error())
		return
	}
	planPath, err := s.plans.Resolve(rec.PlanID)
	if err != nil {
		s.fail(ctx, id, nil, fmt.Sprintf("test plan %s not found", rec.PlanID))
		return
	}
	if err := os.MkdirAll(s.reports.ExecutionDir(id), 0o750); err != nil {
		s.fail(ctx, id, nil, fmt.Sprintf("prepare output directory: %v", err))
		return
	}

	console := s.logCfg.ConsoleWriter(s.reports.ConsoleLogPath(id))
	// #nosec G204 -- bin comes from the managed installation, planPath from the plan store
	cmd := exec.Command(bin,
		"-n",
		"-t", planPath,
		"-l", s.reports.ResultsPath(id),
		"-j", s.reports.JMeterLogPath(id),
		"-e",
		"-o", s.reports.ReportDir(id),
	)
	cmd.Stdout = console
	cmd.Stderr = console
	cmd.Env = s.env.Environ()

	if err := cmd.Start(); err != nil {
		_ = console.Close()
		s.fail(ctx, id, nil, fmt.Sprintf("%v: %v", execution.ErrProcessLaunch, err))
		return
	}
	if err := s.reg.MarkRunning(id); err != nil {
		slog.Error("mark running", "id", id, "err", err)
	}
	s.emit(ctx, id, history.EventStarted)
	slog.Info("execution started", "id", id, "plan", rec.PlanID, "pid", cmd.Process.Pid)

	waitErr := cmd.Wait()
	_ = console.Close()
	exitCode := cmd.ProcessState.ExitCode()

	if waitErr == nil && exitCode == 0 {
		reportPath, _ := s.reports.Locate(id)
		if err := s.reg.Complete(id, exitCode, reportPath); err != nil {
			slog.Error("complete execution", "id", id, "err", err)
			return
		}
		metrics.IncCompleted()
		s.observeDuration(id)
		s.emit(ctx, id, history.EventCompleted)
		s.persistTerminal(ctx, id)
		slog.Info("execution completed", "id", id, "report", reportPath != "")
		return
	}
	s.fail(ctx, id, &exitCode, fmt.Sprintf("jmeter exited with code %d", exitCode))
}

func (s *Supervisor) fail(ctx context.Context, id string, exitCode *int, msg string) {
	if err := s.reg.Fail(id, exitCode, msg); err != nil {
		slog.Error("fail execution", "id", id, "err", err)
		return
	}
	metrics.IncFailed()
	s.observeDuration(id)
	s.emit(ctx, id, history.EventFailed)
	s.persistTerminal(ctx, id)
	slog.Warn("execution failed", "id", id, "reason", msg)
}

func (s *Supervisor) observeDuration(id string) {
	rec, err := s.reg.Get(id)
	if err != nil || rec.StartedAt.IsZero() || rec.FinishedAt.IsZero() {
		return
	}
	metrics.ObserveDuration(rec.FinishedAt.Sub(rec.StartedAt).Seconds())
}

// emit sends a lifecycle event to all configured sinks, best effort.
func (s *Supervisor) emit(ctx context.Context, id string, typ history.EventType) {
	if len(s.sinks) == 0 {
		return
	}
	rec, err := s.reg.Get(id)
	if err != nil {
		return
	}
	evt := history.Event{Type: typ, OccurredAt: time.Now().UTC(), Record: rec}
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, evt); err != nil {
			slog.Warn("history sink send", "id", id, "err", err)
		}
	}
}

// persistTerminal writes the terminal record to the durable store so
// history survives restarts. Best effort; the in-memory registry remains
// authoritative for this process's lifetime.
func (s *Supervisor) persistTerminal(ctx context.Context, id string) {
	if s.st == nil {
		return
	}
	rec, err := s.reg.Get(id)
	if err != nil {
		return
	}
	b, err := marshalRecord(rec)
	if err != nil {
		slog.Warn("encode terminal record", "id", id, "err", err)
		return
	}
	if err := s.st.Save(ctx, RecordKeyPrefix+id, b); err != nil {
		slog.Warn("persist terminal record", "id", id, "err", err)
	}
}
