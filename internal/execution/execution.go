package execution

import (
	"errors"
	"time"
)

// State is the lifecycle state of an execution. Transitions are monotone:
// QUEUED -> RUNNING -> {COMPLETED, FAILED}. A queued execution may fail
// directly (e.g. no installation configured) without ever running.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Sentinel errors shared across the orchestration packages.
var (
	// ErrNotFound is returned when an execution, plan, or report id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrNotConfigured is returned when an operation requires a JMeter
	// installation that has not been set up.
	ErrNotConfigured = errors.New("jmeter installation not configured")
	// ErrInvalidConfiguration is returned for bad installation path input.
	ErrInvalidConfiguration = errors.New("invalid installation configuration")
	// ErrProcessLaunch is returned when the JMeter binary exists but the
	// process could not be started.
	ErrProcessLaunch = errors.New("failed to launch process")
	// ErrInvalidState is returned by the registry when a transition would
	// violate the monotone state machine.
	ErrInvalidState = errors.New("invalid state transition")
)

// Record tracks one execution request end to end.
// Timestamps are set exactly once each; ExitCode is present only after a
// run ended; ErrorMessage only in FAILED state; ReportPath only when the
// completed run produced a dashboard report.
type Record struct {
	ID           string    `json:"id"`
	PlanID       string    `json:"plan_id"`
	State        State     `json:"state"`
	QueuedAt     time.Time `json:"queued_at"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ReportPath   string    `json:"report_path,omitempty"`
}

// Active reports whether the record still occupies or may occupy a slot.
func (r Record) Active() bool { return r.State == StateQueued || r.State == StateRunning }
