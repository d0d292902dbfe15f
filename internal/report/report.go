package report

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/meterdock/meterdock/internal/execution"
)

// Manager owns the per-execution output layout under root and locates and
// packages the dashboard reports JMeter generates there:
//
//	<root>/<id>/results.jtl    raw sample log (-l)
//	<root>/<id>/console.log    merged stdout+stderr of the child process
//	<root>/<id>/jmeter.log     JMeter's own log file (-j)
//	<root>/<id>/report/        dashboard report (-e -o)
type Manager struct {
	root string
}

var idRe = regexp.MustCompile(`^[a-fA-F0-9-]{36}$`)

func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create execution root: %w", err)
	}
	return &Manager{root: root}, nil
}

func (m *Manager) ExecutionDir(id string) string { return filepath.Join(m.root, id) }
func (m *Manager) ResultsPath(id string) string {
	return filepath.Join(m.ExecutionDir(id), "results.jtl")
}
func (m *Manager) ConsoleLogPath(id string) string {
	return filepath.Join(m.ExecutionDir(id), "console.log")
}
func (m *Manager) JMeterLogPath(id string) string {
	return filepath.Join(m.ExecutionDir(id), "jmeter.log")
}
func (m *Manager) ReportDir(id string) string {
	return filepath.Join(m.ExecutionDir(id), "report")
}

// Locate returns the report root for the execution, or ok=false when the
// tool produced none. Absence is recorded by the caller, not treated as an
// error.
func (m *Manager) Locate(id string) (string, bool) {
	if !idRe.MatchString(id) {
		return "", false
	}
	dir := m.ReportDir(id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

// Package bundles the execution's report directory into a single zip
// archive. Fails with ErrNotFound when no report exists for the id.
func (m *Manager) Package(id string) ([]byte, error) {
	dir, ok := m.Locate(id)
	if !ok {
		return nil, fmt.Errorf("report for execution %s: %w", id, execution.ErrNotFound)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return err
		}
		_, err = io.Copy(w, f)
		_ = f.Close()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("package report for %s: %w", id, err)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
