// Package poll implements the periodic capture-and-classify loop shared
// by face classification and gesture detection. One engine instance runs
// one loop; at most one classification is in flight at any time.
package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/new-era-ai/facekiosk/internal/logger"
	"github.com/new-era-ai/facekiosk/pkg/types"
)

// State is the engine's tri-state.
type State int32

const (
	StateIdle State = iota
	StateInFlight
	StateStopped
)

var stateNames = [...]string{"idle", "in-flight", "stopped"}

// SampleFailedStatus is surfaced when a frame cannot be captured. The
// loop keeps polling; a later tick may succeed.
const SampleFailedStatus = "Camera read failed, retrying..."

// String returns the state name.
func (s State) String() string {
	if s >= StateIdle && s <= StateStopped {
		return stateNames[s]
	}
	return "unknown"
}

// Verdict is the settlement of one classification flight.
type Verdict struct {
	// Stop terminates the loop when the settlement is applied.
	Stop bool
	// Status updates the user-visible status line. Empty keeps the
	// previous status.
	Status string
	// Emit runs only if the settlement is applied, never after Stop()
	// has already been called on the engine.
	Emit func()
}

// SampleFunc returns the next frame, or nil when none is ready (the
// tick is skipped, not failed).
type SampleFunc func() (*types.Frame, error)

// ProcessFunc classifies one frame. The context carries the per-call
// timeout and is cancelled when the engine stops.
type ProcessFunc func(ctx context.Context, frame *types.Frame) Verdict

// Engine drives a single-flight periodic classification loop.
type Engine struct {
	id       uuid.UUID
	name     string
	interval time.Duration
	timeout  time.Duration
	sample   SampleFunc
	process  ProcessFunc
	status   func(string)

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	loopDone  sync.WaitGroup
}

// New creates an engine. The status callback receives user-visible
// status updates; it may be nil.
func New(name string, interval, timeout time.Duration, sample SampleFunc, process ProcessFunc, status func(string)) *Engine {
	if interval <= 0 {
		interval = types.DefaultConfig().FaceInterval
	}
	if timeout <= 0 {
		timeout = types.DefaultConfig().RequestTimeout
	}
	if status == nil {
		status = func(string) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		id:       uuid.New(),
		name:     name,
		interval: interval,
		timeout:  timeout,
		sample:   sample,
		process:  process,
		status:   status,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ID identifies this engine instance. The controller uses it to discard
// outcomes from engines belonging to an already-exited view.
func (e *Engine) ID() uuid.UUID {
	return e.id
}

// State returns the current poll state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Start launches the ticker loop. Subsequent calls are no-ops.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.loopDone.Add(1)
		go e.run()
		logger.Debug("Poll", "%s engine %s started (interval %s)", e.name, e.id, e.interval)
	})
}

// Stop terminates the loop. Callable at any time, including mid-flight;
// a flight settling after Stop is discarded without mutating state or
// emitting events.
func (e *Engine) Stop() {
	for {
		s := e.state.Load()
		if State(s) == StateStopped {
			return
		}
		if e.state.CompareAndSwap(s, int32(StateStopped)) {
			break
		}
	}
	e.cancel()
	logger.Debug("Poll", "%s engine %s stopped", e.name, e.id)
}

// Wait blocks until the ticker loop has exited. Intended for tests and
// shutdown paths; do not call from an engine callback.
func (e *Engine) Wait() {
	e.loopDone.Wait()
}

func (e *Engine) run() {
	defer e.loopDone.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			// The CAS is the sole overlap guard: a tick arriving
			// while a flight is outstanding is a no-op.
			if !e.state.CompareAndSwap(int32(StateIdle), int32(StateInFlight)) {
				continue
			}
			go e.flight()
		}
	}
}

func (e *Engine) flight() {
	frame, err := e.sample()
	if err != nil {
		logger.Warn("Poll", "%s sample failed: %v", e.name, err)
		// Settlement after Stop discards the status, so a release
		// during teardown does not leave this line behind.
		e.settle(Verdict{Status: SampleFailedStatus})
		return
	}
	if frame == nil {
		// Source not ready; skip the tick.
		e.settle(Verdict{})
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	e.settle(e.process(ctx, frame))
}

// settle applies a flight's verdict. If Stop() won the race the verdict
// is discarded entirely.
func (e *Engine) settle(v Verdict) {
	next := StateIdle
	if v.Stop {
		next = StateStopped
	}
	if !e.state.CompareAndSwap(int32(StateInFlight), int32(next)) {
		logger.Debug("Poll", "%s engine %s discarded late settlement", e.name, e.id)
		return
	}
	if v.Stop {
		e.cancel()
	}
	if v.Status != "" {
		e.status(v.Status)
	}
	if v.Emit != nil {
		v.Emit()
	}
}
