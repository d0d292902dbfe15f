package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/meterdock/meterdock/internal/execution"
	"github.com/meterdock/meterdock/internal/metrics"
)

// RunFunc supervises one dispatched execution to a terminal state. It is
// invoked on its own goroutine and must not panic.
type RunFunc func(ctx context.Context, id string)

// Dispatcher bounds the number of concurrently running executions.
// Submissions never block: they enter an unbounded FIFO queue and a single
// background loop hands the oldest queued execution to the supervisor
// whenever a slot is free. The queue and the slot count are the only shared
// state and are guarded by one mutex.
type Dispatcher struct {
	reg   *execution.Registry
	limit int
	run   RunFunc

	mu      sync.Mutex
	queue   []string
	running int

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(reg *execution.Registry, limit int, run RunFunc) *Dispatcher {
	if limit < 1 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		reg:    reg,
		limit:  limit,
		run:    run,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Stop halts dispatching of queued work. In-flight supervisors run to
// completion; there is no execution-level cancellation.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Submit creates a new QUEUED record and returns immediately.
func (d *Dispatcher) Submit(planID string) execution.Record {
	id := uuid.NewString()
	rec := d.reg.Add(id, planID)

	d.mu.Lock()
	d.queue = append(d.queue, id)
	metrics.SetQueued(len(d.queue))
	d.mu.Unlock()

	metrics.IncSubmitted()
	d.signal()
	slog.Debug("execution queued", "id", id, "plan", planID)
	return rec
}

// Limit returns the configured maximum number of concurrent executions.
func (d *Dispatcher) Limit() int { return d.limit }

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		d.dispatchReady()
		select {
		case <-d.ctx.Done():
			return
		case <-d.wake:
		}
	}
}

// dispatchReady starts as many queued executions as free slots allow,
// strictly in submission order.
func (d *Dispatcher) dispatchReady() {
	for {
		d.mu.Lock()
		if d.running >= d.limit || len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		id := d.queue[0]
		d.queue = d.queue[1:]
		d.running++
		metrics.SetQueued(len(d.queue))
		metrics.SetRunning(d.running)
		d.mu.Unlock()

		d.wg.Add(1)
		go d.runOne(id)
	}
}

func (d *Dispatcher) runOne(id string) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.running--
		metrics.SetRunning(d.running)
		d.mu.Unlock()
		d.signal()
	}()
	d.run(d.ctx, id)
}
