package meterdock

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meterdock/meterdock/internal/execution"
)

func TestEmbeddedLifecycle(t *testing.T) {
	c := DefaultConfig()
	c.DataDir = t.TempDir()
	c.Store.Path = filepath.Join(c.DataDir, "meterdock.db")

	svc, err := New(c)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = svc.Stop() }()

	if st := svc.InstallationStatus(); st.Configured {
		t.Fatalf("fresh service must be unconfigured: %+v", st)
	}

	plan, err := svc.UploadPlan(strings.NewReader("<jmeterTestPlan/>"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	rec, err := svc.Submit(plan.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// No installation is configured, so the execution fails terminally.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := svc.Get(rec.ID)
		if got.State.Terminal() {
			if got.State != execution.StateFailed {
				t.Fatalf("state = %s, want FAILED", got.State)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("execution never reached a terminal state")
}

func TestSubmitUnknownPlan(t *testing.T) {
	c := DefaultConfig()
	c.DataDir = t.TempDir()
	c.Store.Path = filepath.Join(c.DataDir, "meterdock.db")
	svc, err := New(c)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = svc.Stop() }()
	if _, err := svc.Submit("11111111-2222-3333-4444-555555555555"); !errors.Is(err, execution.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
