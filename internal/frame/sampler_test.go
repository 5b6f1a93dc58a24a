package frame

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/new-era-ai/facekiosk/internal/camera"
)

type stubSource struct {
	img image.Image
	err error
}

func (s *stubSource) ReadFrame() (image.Image, error) {
	return s.img, s.err
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 64, A: 255})
		}
	}
	return img
}

func TestSampleNotReadySkips(t *testing.T) {
	s := NewSampler(true, 0)

	frame, err := s.Sample(&stubSource{err: camera.ErrNotReady})
	if err != nil {
		t.Fatalf("not-ready should not be an error, got %v", err)
	}
	if frame != nil {
		t.Fatal("not-ready should yield no frame")
	}
}

func TestSampleZeroSizeSkips(t *testing.T) {
	s := NewSampler(true, 0)

	frame, err := s.Sample(&stubSource{img: image.NewRGBA(image.Rect(0, 0, 0, 0))})
	if err != nil {
		t.Fatalf("zero-size frame should not be an error, got %v", err)
	}
	if frame != nil {
		t.Fatal("zero-size frame should yield no frame")
	}
}

func TestSamplePropagatesReleaseError(t *testing.T) {
	s := NewSampler(false, 0)

	_, err := s.Sample(&stubSource{err: camera.ErrReleased})
	if !errors.Is(err, camera.ErrReleased) {
		t.Fatalf("err = %v, want ErrReleased", err)
	}
}

func TestSampleEncodesNativeDimensions(t *testing.T) {
	s := NewSampler(true, 0)

	frame, err := s.Sample(&stubSource{img: testImage(320, 240)})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if frame == nil {
		t.Fatal("expected a frame")
	}
	if frame.Width != 320 || frame.Height != 240 {
		t.Fatalf("dimensions = %dx%d, want 320x240", frame.Width, frame.Height)
	}
	if len(frame.JPEG) == 0 {
		t.Fatal("expected encoded data")
	}
	if !bytes.HasPrefix(frame.JPEG, []byte{0xFF, 0xD8}) {
		t.Fatal("output is not a JPEG")
	}
	if frame.Timestamp.IsZero() {
		t.Fatal("expected a capture timestamp")
	}
}

func TestSampleIsDeterministic(t *testing.T) {
	s := NewSampler(true, 0)
	img := testImage(160, 120)

	a, err := s.Sample(&stubSource{img: img})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	b, err := s.Sample(&stubSource{img: img})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if !bytes.Equal(a.JPEG, b.JPEG) {
		t.Fatal("identical input should encode identically")
	}
}

func TestEnhancementCurve(t *testing.T) {
	cases := []struct {
		in   uint8
		want uint8
	}{
		{0, 0},     // clamped low
		{128, 134}, // pivot, lifted by brightness only
		{255, 255}, // clamped high
	}
	for _, tc := range cases {
		if got := enhanceLUT[tc.in]; got != tc.want {
			t.Fatalf("lut[%d] = %d, want %d", tc.in, got, tc.want)
		}
	}

	// The curve must be monotonic.
	for i := 1; i < 256; i++ {
		if enhanceLUT[i] < enhanceLUT[i-1] {
			t.Fatalf("lut not monotonic at %d", i)
		}
	}
}

func TestEnhancementLeavesAlpha(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 200
	}
	applyEnhancement(img)
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 200 {
			t.Fatalf("alpha modified at %d", i)
		}
	}
}
