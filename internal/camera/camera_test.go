package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu         sync.Mutex
	frame      image.Image
	closeCount int
}

func (s *fakeSource) ReadFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, ErrNotReady
	}
	return s.frame, nil
}

func (s *fakeSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return nil
}

func (s *fakeSource) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// fakeDevice fails the first failCount opens and succeeds afterwards,
// recording every attempted spec.
type fakeDevice struct {
	failCount int
	attempts  []TierSpec
	source    *fakeSource
}

func (d *fakeDevice) Open(_ context.Context, spec TierSpec) (Source, error) {
	d.attempts = append(d.attempts, spec)
	if len(d.attempts) <= d.failCount {
		return nil, fmt.Errorf("tier rejected")
	}
	if d.source == nil {
		d.source = &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 640, 480))}
	}
	return d.source, nil
}

func TestAcquireTriesTiersInOrder(t *testing.T) {
	dev := &fakeDevice{failCount: 2}

	sess, err := Acquire(context.Background(), dev, DefaultTierOrder())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer sess.Release()

	if got, want := sess.Tier(), TierMedium; got != want {
		t.Fatalf("tier = %s, want %s", got, want)
	}

	want := []TierSpec{TierUltra.Spec(), TierHigh.Spec(), TierMedium.Spec()}
	if len(dev.attempts) != len(want) {
		t.Fatalf("attempts = %d, want %d", len(dev.attempts), len(want))
	}
	for i, spec := range want {
		if dev.attempts[i] != spec {
			t.Fatalf("attempt %d = %+v, want %+v", i, dev.attempts[i], spec)
		}
	}
}

func TestAcquireStopsAtFirstSuccess(t *testing.T) {
	dev := &fakeDevice{}

	sess, err := Acquire(context.Background(), dev, DefaultTierOrder())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer sess.Release()

	if len(dev.attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(dev.attempts))
	}
	if got := sess.Tier(); got != TierUltra {
		t.Fatalf("tier = %s, want ultra", got)
	}
}

func TestAcquireAllTiersFail(t *testing.T) {
	dev := &fakeDevice{failCount: len(DefaultTierOrder())}

	_, err := Acquire(context.Background(), dev, DefaultTierOrder())
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("err = %v, want ErrCameraUnavailable", err)
	}
	if len(dev.attempts) != len(DefaultTierOrder()) {
		t.Fatalf("attempts = %d, want %d", len(dev.attempts), len(DefaultTierOrder()))
	}
}

func TestAcquireHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dev := &fakeDevice{}
	if _, err := Acquire(ctx, dev, DefaultTierOrder()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(dev.attempts) != 0 {
		t.Fatalf("attempts = %d, want 0", len(dev.attempts))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	src := &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 64, 48))}
	sess := newSession(TierHigh, src)

	sess.Release()
	sess.Release()

	if got := src.closes(); got != 1 {
		t.Fatalf("source closed %d times, want 1", got)
	}
	if !sess.Released() {
		t.Fatal("session should report released")
	}
}

func TestReadAfterReleaseFails(t *testing.T) {
	src := &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 64, 48))}
	sess := newSession(TierHigh, src)
	sess.Release()

	if _, err := sess.ReadFrame(); !errors.Is(err, ErrReleased) {
		t.Fatalf("err = %v, want ErrReleased", err)
	}
	if w, h := sess.Dimensions(); w != 0 || h != 0 {
		t.Fatalf("dimensions after release = %dx%d, want 0x0", w, h)
	}
}

// stalledSource blocks ReadFrame until Close is called, like a wedged
// device driver.
type stalledSource struct {
	unblock chan struct{}
	once    sync.Once
}

func newStalledSource() *stalledSource {
	return &stalledSource{unblock: make(chan struct{})}
}

func (s *stalledSource) ReadFrame() (image.Image, error) {
	<-s.unblock
	return nil, ErrReleased
}

func (s *stalledSource) Dimensions() (int, int) { return 0, 0 }

func (s *stalledSource) Close() error {
	s.once.Do(func() { close(s.unblock) })
	return nil
}

func TestReleaseDoesNotWaitForInFlightRead(t *testing.T) {
	src := newStalledSource()
	sess := newSession(TierHigh, src)

	readDone := make(chan error, 1)
	go func() {
		_, err := sess.ReadFrame()
		readDone <- err
	}()

	released := make(chan struct{})
	go func() {
		sess.Release()
		close(released)
	}()

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("Release blocked behind an in-flight ReadFrame")
	}

	// Closing the source must also unwedge the pending read.
	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadFrame still blocked after Release")
	}
	if _, err := sess.ReadFrame(); !errors.Is(err, ErrReleased) {
		t.Fatalf("err = %v, want ErrReleased", err)
	}
}

func TestTierSpecs(t *testing.T) {
	if spec := TierDefault.Spec(); spec != (TierSpec{}) {
		t.Fatalf("default tier spec = %+v, want unconstrained", spec)
	}
	if spec := TierUltra.Spec(); spec.Width != 1920 || spec.Height != 1080 {
		t.Fatalf("ultra tier spec = %+v", spec)
	}
}
