// Package capture turns a live camera feed into JPEG frames for detection.
package capture

import (
	"context"
	"errors"
	"image"
	"sync"
)

var (
	// ErrCaptureUnavailable means the source has no decodable content yet.
	ErrCaptureUnavailable = errors.New("capture: source not ready")

	// ErrEncodingFailure means rasterizing or compressing the frame failed.
	ErrEncodingFailure = errors.New("capture: encoding failed")
)

// Source produces the current visual content of a camera on demand.
type Source interface {
	Snapshot(ctx context.Context) (image.Image, error)
	Close() error
}

// StaticSource serves whatever image was last set on it.
type StaticSource struct {
	mu  sync.RWMutex
	img image.Image
}

func NewStaticSource(img image.Image) *StaticSource {
	return &StaticSource{img: img}
}

func (s *StaticSource) Set(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

func (s *StaticSource) Snapshot(ctx context.Context) (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return nil, ErrCaptureUnavailable
	}
	return s.img, nil
}

func (s *StaticSource) Close() error { return nil }

// Switcher delegates to an inner Source that can be replaced while the
// stream is running, e.g. after the camera endpoint is resubmitted.
type Switcher struct {
	mu    sync.RWMutex
	inner Source
}

func NewSwitcher(inner Source) *Switcher {
	return &Switcher{inner: inner}
}

// Replace installs next and closes the previous source.
func (s *Switcher) Replace(next Source) error {
	s.mu.Lock()
	prev := s.inner
	s.inner = next
	s.mu.Unlock()

	if prev != nil {
		return prev.Close()
	}
	return nil
}

func (s *Switcher) Snapshot(ctx context.Context) (image.Image, error) {
	s.mu.RLock()
	inner := s.inner
	s.mu.RUnlock()

	if inner == nil {
		return nil, ErrCaptureUnavailable
	}
	return inner.Snapshot(ctx)
}

func (s *Switcher) Close() error {
	return s.Replace(nil)
}

// Stats reports the inner source's counters when it keeps any.
func (s *Switcher) Stats() (SourceStats, bool) {
	s.mu.RLock()
	inner := s.inner
	s.mu.RUnlock()

	if reporter, ok := inner.(interface{ Stats() SourceStats }); ok {
		return reporter.Stats(), true
	}
	return SourceStats{}, false
}
