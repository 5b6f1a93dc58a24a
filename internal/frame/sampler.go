package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/new-era-ai/facekiosk/internal/camera"
	"github.com/new-era-ai/facekiosk/pkg/types"
)

const (
	// DefaultQuality is the JPEG encoder quality for sampled frames.
	DefaultQuality = 90

	contrastFactor = 1.2
	contrastPivot  = 128
	brightnessLift = 1.05
)

// enhanceLUT maps each channel value through the fixed contrast and
// brightness normalization, clamped to the valid range.
var enhanceLUT = buildEnhanceLUT()

func buildEnhanceLUT() [256]uint8 {
	var lut [256]uint8
	for i := range lut {
		v := (float64(i)-contrastPivot)*contrastFactor + contrastPivot
		v *= brightnessLift
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		lut[i] = uint8(v)
	}
	return lut
}

// FrameSource yields the current visual frame of a camera session.
// *camera.Session satisfies it.
type FrameSource interface {
	ReadFrame() (image.Image, error)
}

// Sampler renders the current video frame to an encoded still image.
// Deterministic given identical pixel input.
type Sampler struct {
	Enhance bool
	Quality int
}

// NewSampler returns a sampler with the given enhancement setting and
// JPEG quality (DefaultQuality when quality is not positive).
func NewSampler(enhance bool, quality int) *Sampler {
	if quality <= 0 {
		quality = DefaultQuality
	}
	return &Sampler{Enhance: enhance, Quality: quality}
}

// Sample captures one frame. A (nil, nil) return means the source has
// no frame yet; callers skip the tick rather than fail the session.
func (s *Sampler) Sample(src FrameSource) (*types.Frame, error) {
	img, err := src.ReadFrame()
	if err != nil {
		if errors.Is(err, camera.ErrNotReady) {
			return nil, nil
		}
		return nil, fmt.Errorf("sample frame: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, nil
	}

	rgba := image.NewRGBA(bounds)
	xdraw.Copy(rgba, bounds.Min, img, bounds, xdraw.Src, nil)

	if s.Enhance {
		applyEnhancement(rgba)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: s.Quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	return &types.Frame{
		JPEG:      buf.Bytes(),
		Timestamp: time.Now(),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

// applyEnhancement normalizes contrast and brightness in place. Alpha
// is left untouched.
func applyEnhancement(img *image.RGBA) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = enhanceLUT[pix[i]]
		pix[i+1] = enhanceLUT[pix[i+1]]
		pix[i+2] = enhanceLUT[pix[i+2]]
	}
}
