package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-mjpeg"
	"go.uber.org/zap"
)

var errStreamStalled = errors.New("capture: camera stream stalled")

type SourceStats struct {
	URL           string    `json:"url"`
	Connected     bool      `json:"connected"`
	FramesDecoded uint64    `json:"frames_decoded"`
	FramesDropped uint64    `json:"frames_dropped"`
	DecodeErrors  uint64    `json:"decode_errors"`
	Reconnects    uint64    `json:"reconnects"`
	LastFrameAt   time.Time `json:"last_frame_at"`
	Resolution    string    `json:"resolution"`
}

// MJPEGSource follows a multipart/x-mixed-replace stream and keeps only the
// most recent decoded frame. Older frames are overwritten, never queued.
type MJPEGSource struct {
	url        string
	client     *http.Client
	logger     *zap.Logger
	staleAfter time.Duration
	maxBackoff time.Duration

	mu       sync.RWMutex
	latest   image.Image
	consumed bool
	stats    SourceStats

	cancel context.CancelFunc
	done   chan struct{}
}

func NewMJPEGSource(url string, staleAfter, maxBackoff time.Duration, logger *zap.Logger) *MJPEGSource {
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &MJPEGSource{
		url:        url,
		client:     newStreamClient(),
		logger:     logger.With(zap.String("camera_url", url)),
		staleAfter: staleAfter,
		maxBackoff: maxBackoff,
		stats:      SourceStats{URL: url},
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go s.run(ctx)

	return s
}

// The stream never ends on its own, so only connection setup is bounded.
func newStreamClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          2,
			IdleConnTimeout:       30 * time.Second,
		},
	}
}

func (s *MJPEGSource) run(ctx context.Context) {
	defer close(s.done)

	initial := 500 * time.Millisecond
	if initial > s.maxBackoff {
		initial = s.maxBackoff
	}

	backoff := initial
	for {
		received, err := s.stream(ctx)
		s.setConnected(false)

		if ctx.Err() != nil {
			return
		}

		if received > 0 {
			backoff = initial
		}

		s.logger.Warn("Camera stream interrupted, reconnecting",
			zap.Error(err),
			zap.Uint64("frames", received),
			zap.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		s.mu.Lock()
		s.stats.Reconnects++
		s.mu.Unlock()

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// stream follows one connection until it fails or stalls. With staleAfter
// set, a connection that delivers no frame for that long is dropped so run
// can reconnect. The multipart reader only finishes a part once the next
// boundary arrives, so each frame is published one frame interval late.
func (s *MJPEGSource) stream(ctx context.Context) (uint64, error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return 0, fmt.Errorf("invalid content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return 0, fmt.Errorf("not an MJPEG stream: %s", mediaType)
	}

	s.setConnected(true)
	s.logger.Info("Camera stream connected")

	var watchdog *time.Timer
	if s.staleAfter > 0 {
		watchdog = time.AfterFunc(s.staleAfter, cancel)
		defer watchdog.Stop()
	}

	decoder := mjpeg.NewDecoder(resp.Body, params["boundary"])
	var received uint64
	for {
		img, err := decoder.Decode()
		if err != nil {
			if isJPEGError(err) {
				s.mu.Lock()
				s.stats.DecodeErrors++
				s.mu.Unlock()
				s.logger.Debug("Skipping undecodable frame", zap.Error(err))
				continue
			}
			if connCtx.Err() != nil && ctx.Err() == nil {
				return received, fmt.Errorf("%w: no frame for %s", errStreamStalled, s.staleAfter)
			}
			if errors.Is(err, io.EOF) {
				return received, io.ErrUnexpectedEOF
			}
			return received, fmt.Errorf("failed to read frame: %w", err)
		}

		if watchdog != nil {
			watchdog.Reset(s.staleAfter)
		}
		s.store(img)
		received++
	}
}

// isJPEGError separates a bad frame, which is skipped, from a broken stream.
func isJPEGError(err error) bool {
	var formatErr jpeg.FormatError
	var unsupportedErr jpeg.UnsupportedError
	return errors.As(err, &formatErr) || errors.As(err, &unsupportedErr)
}

func (s *MJPEGSource) store(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest != nil && !s.consumed {
		s.stats.FramesDropped++
	}
	s.latest = img
	s.consumed = false
	s.stats.FramesDecoded++
	s.stats.LastFrameAt = time.Now()
	b := img.Bounds()
	s.stats.Resolution = fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
}

func (s *MJPEGSource) setConnected(connected bool) {
	s.mu.Lock()
	s.stats.Connected = connected
	s.mu.Unlock()
}

func (s *MJPEGSource) Snapshot(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return nil, ErrCaptureUnavailable
	}
	if s.staleAfter > 0 && time.Since(s.stats.LastFrameAt) > s.staleAfter {
		return nil, fmt.Errorf("%w: last frame %s ago", ErrCaptureUnavailable,
			time.Since(s.stats.LastFrameAt).Round(time.Millisecond))
	}

	s.consumed = true
	return s.latest, nil
}

func (s *MJPEGSource) Stats() SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *MJPEGSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}
