package installation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/meterdock/meterdock/internal/execution"
	"github.com/meterdock/meterdock/internal/store"
)

// RecordKey is the fixed durable-store key holding the installation state.
const RecordKey = "installation-state"

const (
	binaryUnix    = "jmeter"
	binaryWindows = "jmeter.bat"

	probeTimeout = 20 * time.Second
)

// State is the persisted installation configuration. The Manager is its
// single writer; every other component reads it through the Manager.
type State struct {
	InstallationPath string `json:"installation_path"`
	Version          string `json:"version,omitempty"`
}

// VerifyResult describes the outcome of probing the configured installation.
type VerifyResult struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Status is the read-only view exposed to the API layer.
type Status struct {
	Configured bool   `json:"configured"`
	Path       string `json:"path,omitempty"`
	Version    string `json:"version,omitempty"`
}

// Manager owns the JMeter installation configuration: path and detected
// version, persisted on every change and reloaded at process start.
type Manager struct {
	mu      sync.RWMutex
	st      store.Store
	path    string
	version string
}

func NewManager(st store.Store) *Manager {
	return &Manager{st: st}
}

// Load restores persisted state. It must run before any other component
// queries the configuration; a missing record simply means unconfigured.
func (m *Manager) Load(ctx context.Context) error {
	rec, err := m.st.Load(ctx, RecordKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load installation state: %w", err)
	}
	var s State
	if err := json.Unmarshal(rec.Value, &s); err != nil {
		return fmt.Errorf("decode installation state: %w", err)
	}
	m.mu.Lock()
	m.path = s.InstallationPath
	m.version = s.Version
	m.mu.Unlock()
	return nil
}

// Configure stores path as the active installation, probes it for a version
// and persists the state. Version detection failure is non-fatal: the path
// is stored and persisted regardless.
func (m *Manager) Configure(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("installation path must not be blank: %w", execution.ErrInvalidConfiguration)
	}
	m.mu.Lock()
	m.path = path
	m.version = ""
	m.mu.Unlock()

	res := m.Verify(ctx)
	if res.Version != "" {
		m.mu.Lock()
		m.version = res.Version
		m.mu.Unlock()
	} else {
		slog.Warn("jmeter version not detected", "path", path, "detail", res.Message)
	}
	return m.persist(ctx)
}

// IsConfigured reports whether a non-blank installation path is stored.
func (m *Manager) IsConfigured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return strings.TrimSpace(m.path) != ""
}

// ResolveBinaryPath derives the platform executable path from the stored
// installation path. Pure function of stored state, no filesystem access.
func (m *Manager) ResolveBinaryPath() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if strings.TrimSpace(m.path) == "" {
		return "", false
	}
	return filepath.Join(m.path, "bin", binaryName()), true
}

// Verify probes the configured installation. Unavailable means the path is
// unset, the binary is missing, or it lacks execute permission. A probe that
// exits non-zero or prints no version token still counts as available; only
// the version is reported as unknown then.
func (m *Manager) Verify(ctx context.Context) VerifyResult {
	bin, ok := m.ResolveBinaryPath()
	if !ok {
		return VerifyResult{Available: false, Message: "no installation configured"}
	}
	info, err := os.Stat(bin)
	if err != nil {
		return VerifyResult{Available: false, Message: fmt.Sprintf("binary not found at %s", bin)}
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return VerifyResult{Available: false, Message: fmt.Sprintf("binary %s is not executable", bin)}
	}

	cctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	// #nosec G204 -- bin derives from the stored installation path
	out, err := exec.CommandContext(cctx, bin, "--version").CombinedOutput()
	if err != nil {
		slog.Warn("jmeter version probe did not exit cleanly", "binary", bin, "err", err)
	}
	v := ParseVersion(string(out))
	if v == "" {
		return VerifyResult{Available: true, Message: "version could not be determined"}
	}
	return VerifyResult{Available: true, Version: v}
}

// Status returns the current configuration snapshot.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Configured: strings.TrimSpace(m.path) != "",
		Path:       m.path,
		Version:    m.version,
	}
}

// Clear erases the stored path and version and deletes the persisted
// record. Idempotent.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.path = ""
	m.version = ""
	m.mu.Unlock()
	if err := m.st.Delete(ctx, RecordKey); err != nil {
		return fmt.Errorf("delete installation state: %w", err)
	}
	return nil
}

func (m *Manager) persist(ctx context.Context) error {
	m.mu.RLock()
	s := State{InstallationPath: m.path, Version: m.version}
	m.mu.RUnlock()
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := m.st.Save(ctx, RecordKey, b); err != nil {
		return fmt.Errorf("persist installation state: %w", err)
	}
	return nil
}

func binaryName() string {
	if runtime.GOOS == "windows" {
		return binaryWindows
	}
	return binaryUnix
}
