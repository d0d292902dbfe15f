package planstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meterdock/meterdock/internal/execution"
)

// Store keeps uploaded JMeter test plans on disk under dir, one file per
// plan named <id>.jmx. Ids are opaque uuids so uploaded filenames never
// reach the filesystem layer.
type Store struct {
	dir string
}

// Plan describes one stored test plan.
type Plan struct {
	ID         string    `json:"id"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

var idRe = regexp.MustCompile(`^[a-fA-F0-9-]{36}$`)

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create plan dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save stores the plan content and returns its new id.
func (s *Store) Save(r io.Reader) (Plan, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+".jmx")
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return Plan{}, fmt.Errorf("store plan: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return Plan{}, fmt.Errorf("store plan: %w", err)
	}
	return Plan{ID: id, Size: n, UploadedAt: time.Now().UTC()}, nil
}

// Resolve maps a plan id to its filesystem path. Fails with ErrNotFound
// when the id is unknown or the underlying file was deleted.
func (s *Store) Resolve(id string) (string, error) {
	if !idRe.MatchString(id) {
		return "", fmt.Errorf("plan %q: %w", id, execution.ErrNotFound)
	}
	path := filepath.Join(s.dir, id+".jmx")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("plan %s: %w", id, execution.ErrNotFound)
	}
	return path, nil
}

// List returns all stored plans, oldest upload first.
func (s *Store) List() ([]Plan, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]Plan, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jmx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Plan{
			ID:         strings.TrimSuffix(e.Name(), ".jmx"),
			Size:       info.Size(),
			UploadedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}
