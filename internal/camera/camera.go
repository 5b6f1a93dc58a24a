package camera

import (
	"context"
	"errors"
	"image"

	"github.com/new-era-ai/facekiosk/internal/logger"
)

var (
	// ErrCameraUnavailable is returned when no quality tier could be
	// acquired. Fatal to the current view; the caller must surface it
	// and must not proceed to sampling.
	ErrCameraUnavailable = errors.New("camera unavailable")

	// ErrNotReady is returned by a Source before its first frame is
	// available. Callers skip the tick rather than fail the session.
	ErrNotReady = errors.New("camera source not ready")

	// ErrReleased is returned when reading from a released session.
	ErrReleased = errors.New("camera session released")
)

// QualityTier names a camera quality configuration.
type QualityTier int

const (
	TierUltra QualityTier = iota
	TierHigh
	TierMedium
	TierDefault
)

var tierNames = [...]string{"ultra", "high", "medium", "default"}

// String returns the tier name.
func (t QualityTier) String() string {
	if t >= TierUltra && t <= TierDefault {
		return tierNames[t]
	}
	return "unknown"
}

// TierSpec is the resolution and frame-rate target of a tier.
// A zero field means unconstrained.
type TierSpec struct {
	Width     int
	Height    int
	FrameRate int
}

// Spec returns the target for a tier. TierDefault requests an
// unconstrained stream and lets the device pick.
func (t QualityTier) Spec() TierSpec {
	switch t {
	case TierUltra:
		return TierSpec{Width: 1920, Height: 1080, FrameRate: 30}
	case TierHigh:
		return TierSpec{Width: 1280, Height: 720, FrameRate: 30}
	case TierMedium:
		return TierSpec{Width: 640, Height: 480, FrameRate: 24}
	default:
		return TierSpec{}
	}
}

// DefaultTierOrder returns the descending preference list tried on
// acquisition.
func DefaultTierOrder() []QualityTier {
	return []QualityTier{TierUltra, TierHigh, TierMedium, TierDefault}
}

// Source is an open video stream. Implementations must stop all
// underlying tracks on Close.
type Source interface {
	// ReadFrame returns the current frame, ErrNotReady before the
	// first frame is available, or a terminal error.
	ReadFrame() (image.Image, error)

	// Dimensions reports the native frame size, (0, 0) until known.
	Dimensions() (width, height int)

	Close() error
}

// Device negotiates a video stream matching a tier target.
type Device interface {
	Open(ctx context.Context, spec TierSpec) (Source, error)
}

// Acquire attempts the given tiers strictly in order and returns a
// session for the first that succeeds. If every tier fails it returns
// ErrCameraUnavailable.
func Acquire(ctx context.Context, dev Device, tiers []QualityTier) (*Session, error) {
	if len(tiers) == 0 {
		tiers = DefaultTierOrder()
	}

	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		src, err := dev.Open(ctx, tier.Spec())
		if err != nil {
			logger.Warn("Camera", "Tier %s failed: %v", tier, err)
			continue
		}

		logger.Info("Camera", "Acquired stream at tier %s", tier)
		return newSession(tier, src), nil
	}

	return nil, ErrCameraUnavailable
}
