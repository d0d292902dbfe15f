package report

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/meterdock/meterdock/internal/execution"
)

const testID = "11111111-2222-3333-4444-555555555555"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return m
}

func writeReport(t *testing.T, m *Manager, id string, files map[string]string) {
	t.Helper()
	dir := m.ReportDir(id)
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestLocate(t *testing.T) {
	m := newTestManager(t)
	if _, ok := m.Locate(testID); ok {
		t.Fatal("missing report must not be located")
	}
	writeReport(t, m, testID, map[string]string{"index.html": "<html/>"})
	dir, ok := m.Locate(testID)
	if !ok || dir != m.ReportDir(testID) {
		t.Fatalf("locate = %q, %v", dir, ok)
	}
	if _, ok := m.Locate("../../../etc"); ok {
		t.Fatal("malformed id must not locate anything")
	}
}

func TestPackage(t *testing.T) {
	m := newTestManager(t)
	writeReport(t, m, testID, map[string]string{
		"index.html":          "<html/>",
		"content/js/chart.js": "render()",
	})
	b, err := m.Package(testID)
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["index.html"] || !names["content/js/chart.js"] {
		t.Fatalf("archive is missing entries: %v", names)
	}
}

func TestPackageNotFound(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Package(testID); !errors.Is(err, execution.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSummarizeFromStatistics(t *testing.T) {
	m := newTestManager(t)
	writeReport(t, m, testID, map[string]string{
		"statistics.json": `{"Total":{"transaction":"Total","sampleCount":120,"errorCount":3,
			"meanResTime":45.5,"minResTime":2.0,"maxResTime":810.0,"medianResTime":40.0,
			"pct1ResTime":90.0,"pct2ResTime":120.0,"pct3ResTime":400.0,"throughput":12.5}}`,
	})
	s, err := m.Summarize(testID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Source != "dashboard" || s.Samples != 120 || s.Errors != 3 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.P90Ms != 90.0 || s.ThroughputPerSec != 12.5 {
		t.Fatalf("unexpected percentiles %+v", s)
	}
}

func TestSummarizeFromJTL(t *testing.T) {
	m := newTestManager(t)
	if err := os.MkdirAll(m.ExecutionDir(testID), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	jtl := "timeStamp,elapsed,label,responseCode,success\n" +
		"1700000000000,10,HTTP Request,200,true\n" +
		"1700000000100,20,HTTP Request,200,true\n" +
		"1700000000200,30,HTTP Request,500,false\n" +
		"1700000000300,40,HTTP Request,200,true\n"
	if err := os.WriteFile(m.ResultsPath(testID), []byte(jtl), 0o644); err != nil {
		t.Fatalf("write jtl: %v", err)
	}
	s, err := m.Summarize(testID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Source != "jtl" || s.Samples != 4 || s.Errors != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.MinMs != 10 || s.MaxMs != 40 {
		t.Fatalf("unexpected min/max %+v", s)
	}
	if s.P99Ms < s.P50Ms {
		t.Fatalf("percentiles not ordered %+v", s)
	}
	if s.ThroughputPerSec <= 0 {
		t.Fatalf("throughput must be positive %+v", s)
	}
}

func TestSummarizeJTLSkipsTruncatedRows(t *testing.T) {
	m := newTestManager(t)
	if err := os.MkdirAll(m.ExecutionDir(testID), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// success precedes timeStamp/elapsed; a row cut off after success must
	// be skipped, not indexed past its end.
	jtl := "success,label,timeStamp,elapsed\n" +
		"true\n" +
		"true,HTTP Request,1700000000000,15\n" +
		"false,HTTP Request,1700000000100,25\n"
	if err := os.WriteFile(m.ResultsPath(testID), []byte(jtl), 0o644); err != nil {
		t.Fatalf("write jtl: %v", err)
	}
	s, err := m.Summarize(testID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Samples != 2 || s.Errors != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestSummarizeNotFound(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Summarize(testID); !errors.Is(err, execution.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
