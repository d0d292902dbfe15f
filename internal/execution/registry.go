package execution

import (
	"fmt"
	"sync"
	"time"
)

// Registry is the authoritative table of execution records. It is mutated
// only by the dispatcher (creation, dispatch-to-RUNNING) and the supervisor
// (terminal transitions). All reads return copies so callers never observe
// a half-written record.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Add inserts a new record in QUEUED state.
func (r *Registry) Add(id, planID string) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &Record{
		ID:       id,
		PlanID:   planID,
		State:    StateQueued,
		QueuedAt: time.Now().UTC(),
	}
	r.records[id] = rec
	r.order = append(r.order, id)
	return *rec
}

// Restore re-inserts a terminal record loaded from durable storage, so
// execution history survives restarts. Non-terminal and duplicate records
// are ignored; a restarted process cannot resume an interrupted run.
func (r *Registry) Restore(rec Record) {
	if !rec.State.Terminal() || rec.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return
	}
	cp := rec
	r.records[rec.ID] = &cp
	r.order = append(r.order, rec.ID)
}

// Get returns a snapshot of the record for id.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	return *rec, nil
}

// List returns snapshots of all records in insertion order.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.records[id])
	}
	return out
}

// MarkRunning transitions a QUEUED record to RUNNING.
func (r *Registry) MarkRunning(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	if rec.State != StateQueued {
		return fmt.Errorf("execution %s: %s -> RUNNING: %w", id, rec.State, ErrInvalidState)
	}
	rec.State = StateRunning
	rec.StartedAt = time.Now().UTC()
	return nil
}

// Complete transitions a RUNNING record to COMPLETED. reportPath may be
// empty when the run produced no dashboard report; that is recorded, not
// treated as a failure.
func (r *Registry) Complete(id string, exitCode int, reportPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	if rec.State != StateRunning {
		return fmt.Errorf("execution %s: %s -> COMPLETED: %w", id, rec.State, ErrInvalidState)
	}
	rec.State = StateCompleted
	rec.FinishedAt = time.Now().UTC()
	rec.ExitCode = &exitCode
	rec.ReportPath = reportPath
	return nil
}

// Fail transitions a QUEUED or RUNNING record to FAILED. exitCode may be
// nil when the process never ran (launch failure, missing configuration).
func (r *Registry) Fail(id string, exitCode *int, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	if rec.State.Terminal() {
		return fmt.Errorf("execution %s: %s -> FAILED: %w", id, rec.State, ErrInvalidState)
	}
	rec.State = StateFailed
	rec.FinishedAt = time.Now().UTC()
	rec.ExitCode = exitCode
	rec.ErrorMessage = message
	return nil
}

// CountRunning returns the number of RUNNING records.
func (r *Registry) CountRunning() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if rec.State == StateRunning {
			n++
		}
	}
	return n
}

// HasActive reports whether any record is QUEUED or RUNNING. The API layer
// uses this snapshot to refuse installation replacement while work is in
// flight.
func (r *Registry) HasActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.Active() {
			return true
		}
	}
	return false
}
