// Package gesture maps detected head gestures onto a binary branch with
// a manual override fallback. It specializes the polling engine with a
// shorter tick and a confirmation delay before the branch fires.
package gesture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/new-era-ai/facekiosk/internal/logger"
	"github.com/new-era-ai/facekiosk/internal/poll"
	"github.com/new-era-ai/facekiosk/pkg/types"
)

// Decision is the binary branch of the gesture view.
type Decision int

const (
	DecisionAffirm Decision = iota
	DecisionDecline
)

// String returns the decision name.
func (d Decision) String() string {
	if d == DecisionAffirm {
		return "affirm"
	}
	return "decline"
}

// User-visible hints surfaced while polling.
const (
	HintLooking  = "Tilt your head left for yes, right for no"
	HintCentered = "Keep tilting, your head is still centered"
	HintAffirm   = "Left tilt detected, confirming..."
	HintDecline  = "Right tilt detected, confirming..."
	HintDegraded = "Gesture detection unavailable, use the Yes/No buttons"
)

// Classifier submits a frame to the gesture endpoint.
type Classifier func(ctx context.Context, frame *types.Frame) types.Gesture

// Config holds the unit's timing parameters.
type Config struct {
	Interval     time.Duration // tick period, shorter than face polling
	Timeout      time.Duration // per-call timeout
	ConfirmDelay time.Duration // feedback delay before the branch fires
}

// Unit runs gesture polling and emits exactly one decision, either from
// a detected gesture (after the confirmation delay) or from a manual
// override (immediately).
type Unit struct {
	engine       *poll.Engine
	confirmDelay time.Duration
	emit         func(Decision)

	mu      sync.Mutex
	decided bool
	timer   *time.Timer
}

// NewUnit creates a gesture decision unit. The emit callback receives
// the single decision; status receives user-visible hints.
func NewUnit(cfg Config, sample poll.SampleFunc, classify Classifier, emit func(Decision), status func(string)) *Unit {
	if cfg.Interval <= 0 {
		cfg.Interval = types.DefaultConfig().GestureInterval
	}
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = types.DefaultConfig().ConfirmDelay
	}

	u := &Unit{
		confirmDelay: cfg.ConfirmDelay,
		emit:         emit,
	}
	u.engine = poll.New("gesture", cfg.Interval, cfg.Timeout, sample, u.makeProcess(classify), status)
	return u
}

// ID identifies the underlying engine instance.
func (u *Unit) ID() uuid.UUID {
	return u.engine.ID()
}

// State returns the underlying poll state.
func (u *Unit) State() poll.State {
	return u.engine.State()
}

// Start begins gesture polling.
func (u *Unit) Start() {
	u.engine.Start()
}

// Stop tears the unit down: polling stops and any pending confirmation
// is cancelled without emitting. Used on view exit.
func (u *Unit) Stop() {
	u.engine.Stop()

	u.mu.Lock()
	defer u.mu.Unlock()
	u.decided = true
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
}

// Active reports whether a decision can still be produced.
func (u *Unit) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.decided
}

// AffirmManually immediately emits an affirm decision, bypassing the
// confirmation delay and cancelling any pending confirmation. Returns
// false once an outcome has already been emitted.
func (u *Unit) AffirmManually() bool {
	return u.override(DecisionAffirm)
}

// DeclineManually immediately emits a decline decision, bypassing the
// confirmation delay.
func (u *Unit) DeclineManually() bool {
	return u.override(DecisionDecline)
}

func (u *Unit) override(d Decision) bool {
	u.mu.Lock()
	if u.decided {
		u.mu.Unlock()
		return false
	}
	u.decided = true
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
	u.mu.Unlock()

	u.engine.Stop()
	logger.Info("Gesture", "Manual %s", d)
	u.emit(d)
	return true
}

func (u *Unit) makeProcess(classify Classifier) poll.ProcessFunc {
	return func(ctx context.Context, frame *types.Frame) poll.Verdict {
		switch classify(ctx, frame) {
		case types.GestureAffirm:
			return poll.Verdict{
				Stop:   true,
				Status: HintAffirm,
				Emit:   func() { u.schedule(DecisionAffirm) },
			}
		case types.GestureDecline:
			return poll.Verdict{
				Stop:   true,
				Status: HintDecline,
				Emit:   func() { u.schedule(DecisionDecline) },
			}
		case types.GestureCenter:
			return poll.Verdict{Status: HintCentered}
		case types.GestureError:
			return poll.Verdict{Status: HintDegraded}
		default:
			return poll.Verdict{Status: HintLooking}
		}
	}
}

// schedule arms the confirmation delay so the user sees the feedback
// before the view changes. A manual override fired in the meantime wins.
func (u *Unit) schedule(d Decision) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.decided || u.timer != nil {
		return
	}
	u.timer = time.AfterFunc(u.confirmDelay, func() {
		u.fire(d)
	})
}

func (u *Unit) fire(d Decision) {
	u.mu.Lock()
	if u.decided {
		u.mu.Unlock()
		return
	}
	u.decided = true
	u.timer = nil
	u.mu.Unlock()

	logger.Info("Gesture", "Confirmed %s", d)
	u.emit(d)
}
