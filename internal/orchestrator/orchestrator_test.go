package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meterdock/meterdock/internal/config"
	"github.com/meterdock/meterdock/internal/execution"
	"github.com/meterdock/meterdock/internal/history"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	c := config.Default()
	c.DataDir = t.TempDir()
	c.Store.Path = filepath.Join(c.DataDir, "meterdock.db")
	return c
}

func newStarted(t *testing.T, cfg config.Config) *Orchestrator {
	t.Helper()
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = o.Stop() })
	return o
}

// buildDistribution packs a fake installation (bin/jmeter shell script) into
// an in-memory zip, the way a distribution upload arrives.
func buildDistribution(t *testing.T, script string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{Name: "apache-jmeter-5.6.3/bin/jmeter", Method: zip.Deflate}
	hdr.SetMode(0o755)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	if _, err := w.Write([]byte("#!/bin/sh\n" + script + "\n")); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

type captureSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (c *captureSink) Send(_ context.Context, e history.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureSink) snapshot() []history.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]history.Event(nil), c.events...)
}

func TestSubmitEmitsHistoryEvent(t *testing.T) {
	o, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = o.st.Close() })
	sink := &captureSink{}
	o.sinks = append(o.sinks, sink)

	plan, err := o.UploadPlan(strings.NewReader("<jmeterTestPlan/>"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	rec, err := o.Submit(plan.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].Type != history.EventSubmitted {
		t.Fatalf("event type = %s, want %s", events[0].Type, history.EventSubmitted)
	}
	if events[0].Record.ID != rec.ID || events[0].Record.State != execution.StateQueued {
		t.Fatalf("unexpected event record %+v", events[0].Record)
	}
}

func TestSubmitUnknownPlanRejected(t *testing.T) {
	o := newStarted(t, testConfig(t))
	if _, err := o.Submit("00000000-0000-0000-0000-000000000000"); !errors.Is(err, execution.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitWithoutInstallationFailsExecution(t *testing.T) {
	o := newStarted(t, testConfig(t))
	plan, err := o.UploadPlan(strings.NewReader("<jmeterTestPlan/>"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	rec, err := o.Submit(plan.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitUntil(t, 5*time.Second, func() bool {
		got, _ := o.Get(rec.ID)
		return got.State.Terminal()
	})
	got, _ := o.Get(rec.ID)
	if got.State != execution.StateFailed || got.ErrorMessage == "" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestInstallSubmitComplete(t *testing.T) {
	requireUnix(t)
	cfg := testConfig(t)
	o := newStarted(t, cfg)

	archive := buildDistribution(t, `echo 'JMeter 5.6.3'`)
	st, err := o.InstallArchive(context.Background(), "apache-jmeter-5.6.3.zip", bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if !st.Configured || st.Version != "5.6.3" {
		t.Fatalf("unexpected status %+v", st)
	}
	if filepath.Dir(st.Path) != cfg.InstallDir() {
		t.Fatalf("installation %q not under %q", st.Path, cfg.InstallDir())
	}

	plan, err := o.UploadPlan(strings.NewReader("<jmeterTestPlan/>"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	rec, err := o.Submit(plan.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitUntil(t, 5*time.Second, func() bool {
		got, _ := o.Get(rec.ID)
		return got.State.Terminal()
	})
	got, _ := o.Get(rec.ID)
	if got.State != execution.StateCompleted {
		t.Fatalf("state = %s (%s)", got.State, got.ErrorMessage)
	}
	if p, err := o.ConsoleLogPath(rec.ID); err != nil || p == "" {
		t.Fatalf("console log not available: %v", err)
	}
}

func TestInstallationGuardedWhileActive(t *testing.T) {
	cfg := testConfig(t)
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = o.st.Close() })

	// Without the dispatch loop the submission stays QUEUED, which must
	// block installation changes.
	plan, err := o.UploadPlan(strings.NewReader("<jmeterTestPlan/>"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := o.Submit(plan.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !o.HasActive() {
		t.Fatal("expected an active execution")
	}
	if _, err := o.ConfigureInstallation(context.Background(), t.TempDir()); !errors.Is(err, ErrActiveExecutions) {
		t.Fatalf("configure err = %v, want ErrActiveExecutions", err)
	}
	if err := o.ClearInstallation(context.Background()); !errors.Is(err, ErrActiveExecutions) {
		t.Fatalf("clear err = %v, want ErrActiveExecutions", err)
	}
	if _, err := o.InstallArchive(context.Background(), "x.zip", strings.NewReader("")); !errors.Is(err, ErrActiveExecutions) {
		t.Fatalf("install err = %v, want ErrActiveExecutions", err)
	}
}

func TestHistorySurvivesRestart(t *testing.T) {
	requireUnix(t)
	cfg := testConfig(t)
	o := newStarted(t, cfg)
	if _, err := o.InstallArchive(context.Background(), "dist.zip",
		bytes.NewReader(buildDistribution(t, "exit 0"))); err != nil {
		t.Fatalf("install: %v", err)
	}
	plan, err := o.UploadPlan(strings.NewReader("<jmeterTestPlan/>"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	rec, err := o.Submit(plan.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitUntil(t, 5*time.Second, func() bool {
		got, _ := o.Get(rec.ID)
		return got.State.Terminal()
	})
	if err := o.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	o2 := newStarted(t, cfg)
	got, err := o2.Get(rec.ID)
	if err != nil {
		t.Fatalf("record lost across restart: %v", err)
	}
	if !got.State.Terminal() {
		t.Fatalf("restored record not terminal: %+v", got)
	}
	st := o2.InstallationStatus()
	if !st.Configured {
		t.Fatal("installation configuration lost across restart")
	}
	if _, err := os.Stat(st.Path); err != nil {
		t.Fatalf("installed distribution missing: %v", err)
	}
}
