package installation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/meterdock/meterdock/internal/execution"
	"github.com/meterdock/meterdock/internal/store/sqlite"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewManager(db)
}

// writeFakeJMeter lays out <dir>/bin/jmeter printing the given version line.
func writeFakeJMeter(t *testing.T, dir, versionLine string) {
	t.Helper()
	binDir := filepath.Join(dir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	script := "#!/bin/sh\necho '" + versionLine + "'\n"
	if err := os.WriteFile(filepath.Join(binDir, "jmeter"), []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestConfigureBlankPath(t *testing.T) {
	m := newTestManager(t)
	for _, p := range []string{"", "   "} {
		if err := m.Configure(context.Background(), p); !errors.Is(err, execution.ErrInvalidConfiguration) {
			t.Fatalf("path %q: expected ErrInvalidConfiguration, got %v", p, err)
		}
	}
	if m.IsConfigured() {
		t.Fatal("manager must remain unconfigured after rejected input")
	}
}

func TestConfigureDetectsVersionAndPersists(t *testing.T) {
	requireUnix(t)
	m := newTestManager(t)
	dir := t.TempDir()
	writeFakeJMeter(t, dir, "Version 5.6.3")

	if err := m.Configure(context.Background(), dir); err != nil {
		t.Fatalf("configure: %v", err)
	}
	st := m.Status()
	if !st.Configured || st.Version != "5.6.3" {
		t.Fatalf("unexpected status %+v", st)
	}

	// A fresh manager backed by the same store must restore the state.
	m2 := NewManager(m.st)
	if err := m2.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	st2 := m2.Status()
	if st2.Path != dir || st2.Version != "5.6.3" {
		t.Fatalf("state not restored: %+v", st2)
	}
}

func TestConfigurePersistsWithoutVersion(t *testing.T) {
	// Missing binary: path is still stored and persisted, version absent.
	m := newTestManager(t)
	dir := t.TempDir()
	if err := m.Configure(context.Background(), dir); err != nil {
		t.Fatalf("configure: %v", err)
	}
	st := m.Status()
	if !st.Configured || st.Version != "" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestVerify(t *testing.T) {
	requireUnix(t)
	m := newTestManager(t)

	res := m.Verify(context.Background())
	if res.Available {
		t.Fatalf("unconfigured manager must not be available: %+v", res)
	}

	dir := t.TempDir()
	_ = m.Configure(context.Background(), dir)
	res = m.Verify(context.Background())
	if res.Available {
		t.Fatalf("missing binary must not be available: %+v", res)
	}

	writeFakeJMeter(t, dir, "5.6.3")
	res = m.Verify(context.Background())
	if !res.Available || res.Version != "5.6.3" {
		t.Fatalf("unexpected verify result %+v", res)
	}

	// Not executable.
	if err := os.Chmod(filepath.Join(dir, "bin", "jmeter"), 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	res = m.Verify(context.Background())
	if res.Available {
		t.Fatalf("non-executable binary must not be available: %+v", res)
	}
}

func TestResolveBinaryPath(t *testing.T) {
	m := newTestManager(t)
	if _, ok := m.ResolveBinaryPath(); ok {
		t.Fatal("unconfigured manager must not resolve a binary")
	}
	dir := t.TempDir()
	_ = m.Configure(context.Background(), dir)
	bin, ok := m.ResolveBinaryPath()
	if !ok {
		t.Fatal("configured manager must resolve a binary")
	}
	want := "jmeter"
	if runtime.GOOS == "windows" {
		want = "jmeter.bat"
	}
	if filepath.Base(bin) != want || filepath.Dir(bin) != filepath.Join(dir, "bin") {
		t.Fatalf("unexpected binary path %s", bin)
	}
}

func TestClearIdempotent(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()
	_ = m.Configure(context.Background(), dir)

	for i := 0; i < 2; i++ {
		if err := m.Clear(context.Background()); err != nil {
			t.Fatalf("clear #%d: %v", i+1, err)
		}
	}
	if m.IsConfigured() {
		t.Fatal("manager must be unconfigured after clear")
	}
	m2 := NewManager(m.st)
	if err := m2.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if m2.IsConfigured() {
		t.Fatal("cleared state must not be restored")
	}
}
