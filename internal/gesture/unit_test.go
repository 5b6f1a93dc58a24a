package gesture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/new-era-ai/facekiosk/internal/poll"
	"github.com/new-era-ai/facekiosk/pkg/types"
)

func sampleFrames() poll.SampleFunc {
	return func() (*types.Frame, error) {
		return &types.Frame{JPEG: []byte{0xFF, 0xD8}, Timestamp: time.Now()}, nil
	}
}

func fixedGesture(g types.Gesture) Classifier {
	return func(context.Context, *types.Frame) types.Gesture { return g }
}

type recorder struct {
	mu        sync.Mutex
	decisions []Decision
	statuses  []string
}

func (r *recorder) emit(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

func (r *recorder) status(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) emitted() []Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Decision, len(r.decisions))
	copy(out, r.decisions)
	return out
}

func (r *recorder) lastStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

func shortConfig() Config {
	return Config{
		Interval:     5 * time.Millisecond,
		Timeout:      time.Second,
		ConfirmDelay: 30 * time.Millisecond,
	}
}

func TestAffirmEmitsAfterConfirmDelay(t *testing.T) {
	rec := &recorder{}
	u := NewUnit(shortConfig(), sampleFrames(), fixedGesture(types.GestureAffirm), rec.emit, rec.status)
	u.Start()
	defer u.Stop()

	// Polling should stop on detection, before the delay elapses.
	deadline := time.After(2 * time.Second)
	for u.State() != poll.StateStopped {
		select {
		case <-deadline:
			t.Fatal("engine never stopped on detection")
		case <-time.After(time.Millisecond):
		}
	}
	if got := rec.emitted(); len(got) != 0 {
		t.Fatalf("decision emitted before confirm delay: %v", got)
	}

	time.Sleep(60 * time.Millisecond)
	if got := rec.emitted(); len(got) != 1 || got[0] != DecisionAffirm {
		t.Fatalf("decisions = %v, want [affirm]", got)
	}
}

func TestDeclineEmitsAfterConfirmDelay(t *testing.T) {
	rec := &recorder{}
	u := NewUnit(shortConfig(), sampleFrames(), fixedGesture(types.GestureDecline), rec.emit, rec.status)
	u.Start()
	defer u.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := rec.emitted(); len(got) != 1 || got[0] != DecisionDecline {
		t.Fatalf("decisions = %v, want [decline]", got)
	}
}

func TestManualOverrideCancelsPendingConfirmation(t *testing.T) {
	cfg := shortConfig()
	cfg.ConfirmDelay = 200 * time.Millisecond
	rec := &recorder{}
	u := NewUnit(cfg, sampleFrames(), fixedGesture(types.GestureAffirm), rec.emit, rec.status)
	u.Start()
	defer u.Stop()

	// Wait for the affirm detection to arm the confirmation timer.
	deadline := time.After(2 * time.Second)
	for u.State() != poll.StateStopped {
		select {
		case <-deadline:
			t.Fatal("engine never stopped on detection")
		case <-time.After(time.Millisecond):
		}
	}

	if !u.DeclineManually() {
		t.Fatal("manual decline should win over a pending affirm")
	}

	time.Sleep(300 * time.Millisecond)
	if got := rec.emitted(); len(got) != 1 || got[0] != DecisionDecline {
		t.Fatalf("decisions = %v, want [decline] only", got)
	}
}

func TestManualControlsDisabledAfterDecision(t *testing.T) {
	rec := &recorder{}
	u := NewUnit(shortConfig(), sampleFrames(), fixedGesture(types.GestureUndetected), rec.emit, rec.status)
	u.Start()
	defer u.Stop()

	if !u.AffirmManually() {
		t.Fatal("first manual affirm should succeed")
	}
	if u.AffirmManually() {
		t.Fatal("second manual affirm should be rejected")
	}
	if u.DeclineManually() {
		t.Fatal("manual decline after affirm should be rejected")
	}

	if got := rec.emitted(); len(got) != 1 || got[0] != DecisionAffirm {
		t.Fatalf("decisions = %v, want [affirm]", got)
	}
	if u.Active() {
		t.Fatal("unit should be inactive after a decision")
	}
}

func TestUndetectedKeepsPollingWithHint(t *testing.T) {
	rec := &recorder{}
	u := NewUnit(shortConfig(), sampleFrames(), fixedGesture(types.GestureUndetected), rec.emit, rec.status)
	u.Start()

	time.Sleep(60 * time.Millisecond)
	if got := u.State(); got == poll.StateStopped {
		t.Fatal("undetected should keep polling")
	}
	u.Stop()

	if got := rec.lastStatus(); got != HintLooking {
		t.Fatalf("status = %q, want looking hint", got)
	}
	if got := rec.emitted(); len(got) != 0 {
		t.Fatalf("decisions = %v, want none", got)
	}
}

func TestErrorDegradesToManualHint(t *testing.T) {
	rec := &recorder{}
	u := NewUnit(shortConfig(), sampleFrames(), fixedGesture(types.GestureError), rec.emit, rec.status)
	u.Start()

	time.Sleep(60 * time.Millisecond)
	if got := u.State(); got == poll.StateStopped {
		t.Fatal("gesture errors should keep polling")
	}
	u.Stop()

	if got := rec.lastStatus(); got != HintDegraded {
		t.Fatalf("status = %q, want degraded hint", got)
	}
}

func TestStopCancelsPendingConfirmation(t *testing.T) {
	cfg := shortConfig()
	cfg.ConfirmDelay = 100 * time.Millisecond
	rec := &recorder{}
	u := NewUnit(cfg, sampleFrames(), fixedGesture(types.GestureAffirm), rec.emit, rec.status)
	u.Start()

	deadline := time.After(2 * time.Second)
	for u.State() != poll.StateStopped {
		select {
		case <-deadline:
			t.Fatal("engine never stopped on detection")
		case <-time.After(time.Millisecond):
		}
	}

	u.Stop()
	time.Sleep(200 * time.Millisecond)

	if got := rec.emitted(); len(got) != 0 {
		t.Fatalf("stop should cancel the pending decision, got %v", got)
	}
}
