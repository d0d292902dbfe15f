package installer

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ErrExtraction is returned when an uploaded archive is not a valid
// distribution: unreadable container format, no bin/jmeter(.bat) entry, or
// an I/O failure mid-extraction. Any staging artifacts are removed before
// the error surfaces.
var ErrExtraction = errors.New("distribution extraction failed")

const (
	// canonicalDirName is the stable directory the installation manager's
	// stored path points at, distinct from transient staging locations.
	canonicalDirName = "current"

	binaryUnix    = "jmeter"
	binaryWindows = "jmeter.bat"
)

// Installer validates, extracts, and atomically swaps JMeter distribution
// archives. The swap is serialized so two concurrent installs cannot
// interleave the canonical-directory exchange; the last writer wins.
type Installer struct {
	swapMu sync.Mutex
}

func New() *Installer { return &Installer{} }

// Install extracts the archive at archivePath into a fresh staging
// directory inside targetDir, validates that it contains a bin directory
// with a recognized JMeter executable (both Unix and Windows layouts are
// accepted regardless of host OS), and atomically replaces any prior
// canonical installation. Returns the canonical installation path, which is
// stable across repeated installs.
func (i *Installer) Install(archivePath, targetDir string) (string, error) {
	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return "", fmt.Errorf("create target dir: %w", err)
	}
	staging, err := os.MkdirTemp(targetDir, "staging-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(staging) }

	if err := extract(archivePath, staging); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	root, err := findDistributionRoot(staging)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	canonical := filepath.Join(targetDir, canonicalDirName)
	if err := i.swap(root, canonical); err != nil {
		cleanup()
		return "", err
	}
	cleanup()
	slog.Info("installed jmeter distribution", "path", canonical)
	return canonical, nil
}

// swap renames root onto the canonical path. The critical section covers
// only the filesystem exchange, never an in-progress extraction.
func (i *Installer) swap(root, canonical string) error {
	i.swapMu.Lock()
	defer i.swapMu.Unlock()
	old := canonical + ".old"
	_ = os.RemoveAll(old)
	if _, err := os.Stat(canonical); err == nil {
		if err := os.Rename(canonical, old); err != nil {
			return fmt.Errorf("retire previous installation: %w", err)
		}
	}
	if err := os.Rename(root, canonical); err != nil {
		// Best effort rollback of the prior installation.
		_ = os.Rename(old, canonical)
		return fmt.Errorf("activate installation: %w", err)
	}
	_ = os.RemoveAll(old)
	return nil
}

// findDistributionRoot locates the directory inside staging that holds
// bin/jmeter or bin/jmeter.bat. JMeter archives nest everything under one
// top-level directory; a flat archive (bin directly at the root) is also
// accepted.
func findDistributionRoot(staging string) (string, error) {
	candidates := []string{staging}
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			candidates = append(candidates, filepath.Join(staging, e.Name()))
		}
	}
	for _, dir := range candidates {
		for _, name := range []string{binaryUnix, binaryWindows} {
			if fi, err := os.Stat(filepath.Join(dir, "bin", name)); err == nil && fi.Mode().IsRegular() {
				return dir, nil
			}
		}
	}
	return "", fmt.Errorf("archive contains no bin/%s or bin/%s entry", binaryUnix, binaryWindows)
}

func extract(archivePath, dest string) error {
	switch {
	case strings.HasSuffix(archivePath, ".tgz"), strings.HasSuffix(archivePath, ".tar.gz"):
		return extractTarGz(archivePath, dest)
	default:
		return extractZip(archivePath, dest)
	}
}

func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = zr.Close() }()
	for _, f := range zr.File {
		target, err := sanitizePath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		if err := writeFile(target, rc, f.Mode()); err != nil {
			_ = rc.Close()
			return err
		}
		_ = rc.Close()
	}
	return nil
}

func extractTarGz(archivePath, dest string) error {
	f, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = gz.Close() }()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		target, err := sanitizePath(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return err
			}
			// #nosec G115 -- tar mode bits fit in fs.FileMode
			if err := writeFile(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		default:
			// symlinks and specials are skipped; a distribution needs none
		}
	}
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	w, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	// Cap entry size to keep a hostile archive from exhausting the disk.
	if _, err := io.Copy(w, io.LimitReader(r, 1<<31)); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// sanitizePath guards against zip-slip: every entry must resolve inside dest.
func sanitizePath(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.Clean("/"+name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction directory", name)
	}
	return target, nil
}
