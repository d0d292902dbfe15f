package installer

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildZip writes a zip archive with the given name -> content entries.
// Entries ending in "/" become directories.
func buildZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, content := range entries {
		if strings.HasSuffix(name, "/") {
			if _, err := zw.Create(name); err != nil {
				t.Fatalf("create dir entry: %v", err)
			}
			continue
		}
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0o755)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func buildTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o755, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func validEntries() map[string]string {
	return map[string]string{
		"apache-jmeter-5.6.3/bin/jmeter":     "#!/bin/sh\necho 5.6.3\n",
		"apache-jmeter-5.6.3/bin/jmeter.bat": "@echo off\r\necho 5.6.3\r\n",
		"apache-jmeter-5.6.3/lib/core.jar":   "jar-bytes",
	}
}

func TestInstallValidZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "dist.zip")
	buildZip(t, archive, validEntries())

	target := filepath.Join(dir, "install")
	got, err := New().Install(archive, target)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	want := filepath.Join(target, "current")
	if got != want {
		t.Fatalf("canonical path = %s, want %s", got, want)
	}
	if _, err := os.Stat(filepath.Join(got, "bin", "jmeter")); err != nil {
		t.Fatalf("binary missing after install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(got, "lib", "core.jar")); err != nil {
		t.Fatalf("payload missing after install: %v", err)
	}
	assertNoStaging(t, target)
}

func TestInstallValidTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "dist.tgz")
	buildTarGz(t, archive, validEntries())

	got, err := New().Install(archive, filepath.Join(dir, "install"))
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(got, "bin", "jmeter")); err != nil {
		t.Fatalf("binary missing after install: %v", err)
	}
}

func TestInstallWindowsOnlyLayoutAccepted(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "dist.zip")
	buildZip(t, archive, map[string]string{
		"apache-jmeter-5.6.3/bin/jmeter.bat": "@echo off\r\n",
	})
	if _, err := New().Install(archive, filepath.Join(dir, "install")); err != nil {
		t.Fatalf("windows layout must be accepted on any host: %v", err)
	}
}

func TestInstallMissingBinaryFailsClean(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "dist.zip")
	buildZip(t, archive, map[string]string{
		"apache-jmeter-5.6.3/lib/core.jar": "jar-bytes",
		"apache-jmeter-5.6.3/README":       "no binaries here",
	})

	target := filepath.Join(dir, "install")
	_, err := New().Install(archive, target)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "current")); !os.IsNotExist(err) {
		t.Fatal("no canonical installation may exist after a failed install")
	}
	assertNoStaging(t, target)
}

func TestInstallMalformedArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "dist.zip")
	if err := os.WriteFile(archive, []byte("this is not a zip"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	target := filepath.Join(dir, "install")
	if _, err := New().Install(archive, target); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	assertNoStaging(t, target)
}

func TestInstallTwiceKeepsCanonicalPath(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.zip")
	buildZip(t, first, validEntries())
	second := filepath.Join(dir, "b.zip")
	entries := validEntries()
	entries["apache-jmeter-5.6.3/bin/jmeter"] = "#!/bin/sh\necho 5.6.4\n"
	buildZip(t, second, entries)

	target := filepath.Join(dir, "install")
	ins := New()
	p1, err := ins.Install(first, target)
	if err != nil {
		t.Fatalf("first install: %v", err)
	}
	p2, err := ins.Install(second, target)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("canonical path changed across installs: %s vs %s", p1, p2)
	}
	b, err := os.ReadFile(filepath.Join(p2, "bin", "jmeter"))
	if err != nil {
		t.Fatalf("read binary: %v", err)
	}
	if !strings.Contains(string(b), "5.6.4") {
		t.Fatal("second install did not replace the prior distribution")
	}
	assertNoStaging(t, target)
}

func TestInstallRejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "dist.zip")
	buildZip(t, archive, map[string]string{
		"../escape.txt": "outside",
	})
	// Path traversal entries are neutralized by cleaning; the archive then
	// simply lacks a bin directory and is rejected as malformed.
	if _, err := New().Install(archive, filepath.Join(dir, "install")); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); !os.IsNotExist(err) {
		t.Fatal("traversal entry escaped the extraction directory")
	}
}

func assertNoStaging(t *testing.T, target string) {
	t.Helper()
	entries, err := os.ReadDir(target)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatalf("read target: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "staging-") || strings.HasSuffix(e.Name(), ".old") {
			t.Fatalf("leftover artifact %s in target dir", e.Name())
		}
	}
}
