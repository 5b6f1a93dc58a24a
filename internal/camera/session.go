package camera

import (
	"image"
	"sync"

	"github.com/new-era-ai/facekiosk/internal/logger"
)

// Session owns exactly one acquired video stream. It is created on view
// entry and must be released on every exit path; Release is idempotent.
type Session struct {
	tier QualityTier

	mu       sync.Mutex
	src      Source
	released bool
}

func newSession(tier QualityTier, src Source) *Session {
	return &Session{tier: tier, src: src}
}

// Tier returns the quality tier the session was acquired at.
func (s *Session) Tier() QualityTier {
	return s.tier
}

// ReadFrame reads the current frame from the underlying source. The
// read happens outside the session lock so Release stays responsive
// while a read is in flight; a concurrent Release closes the source
// and interrupts the pending read.
func (s *Session) ReadFrame() (image.Image, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil, ErrReleased
	}
	src := s.src
	s.mu.Unlock()

	return src.ReadFrame()
}

// Dimensions reports the native frame size, (0, 0) until the source has
// produced a frame or the session was released.
func (s *Session) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return 0, 0
	}
	return s.src.Dimensions()
}

// Released reports whether the session has been released.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Release stops all underlying tracks. Safe to call more than once and
// from any exit path.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	s.released = true

	if err := s.src.Close(); err != nil {
		logger.Warn("Camera", "Error closing source: %v", err)
	}
	logger.Debug("Camera", "Session released (tier %s)", s.tier)
}
