package camera

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
)

// MediaDevice opens physical cameras through pion/mediadevices. The
// stream is video only; no audio track is ever requested. A driver
// package must be linked in by the importing binary.
type MediaDevice struct {
	// DeviceID pins acquisition to a specific camera. Empty lets the
	// driver pick the default device.
	DeviceID string
}

// Open negotiates a stream matching the tier target plus continuous
// focus/exposure/white-balance hints where the driver supports them.
func (d *MediaDevice) Open(ctx context.Context, spec TierSpec) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if d.DeviceID != "" {
				c.DeviceID = prop.String(d.DeviceID)
			}
			if spec.Width > 0 {
				c.Width = prop.Int(spec.Width)
			}
			if spec.Height > 0 {
				c.Height = prop.Int(spec.Height)
			}
			if spec.FrameRate > 0 {
				c.FrameRate = prop.Float(float64(spec.FrameRate))
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		closeTracks(stream)
		return nil, fmt.Errorf("stream has no video track")
	}

	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		closeTracks(stream)
		return nil, fmt.Errorf("unexpected track type %T", tracks[0])
	}

	return &mediaSource{
		stream: stream,
		reader: vt.NewReader(false),
	}, nil
}

type mediaSource struct {
	stream mediadevices.MediaStream
	reader video.Reader

	mu     sync.Mutex
	width  int
	height int
	closed bool
}

func (s *mediaSource) ReadFrame() (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrReleased
	}
	s.mu.Unlock()

	img, release, err := s.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	// The reader may reuse the frame buffer after release, so the
	// frame is copied out before releasing it.
	out := cloneImage(img)
	release()

	s.mu.Lock()
	bounds := out.Bounds()
	s.width, s.height = bounds.Dx(), bounds.Dy()
	s.mu.Unlock()

	return out, nil
}

func (s *mediaSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *mediaSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	closeTracks(s.stream)
	return nil
}

func closeTracks(stream mediadevices.MediaStream) {
	for _, track := range stream.GetTracks() {
		_ = track.Close()
	}
}

func cloneImage(img image.Image) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)
	return out
}
