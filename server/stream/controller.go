// Package stream runs the capture, detect and alert loop. At most one
// detection request is outstanding at any time, and a stop request lets
// the in-flight round trip finish before the loop halts.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/hazard-cam/server/alert"
	"github.com/san-kum/hazard-cam/server/capture"
	"github.com/san-kum/hazard-cam/server/models"
	"github.com/san-kum/hazard-cam/server/store"
	"go.uber.org/zap"
)

const (
	StatusIdle          = "Idle"
	StatusSending       = "Sending frame..."
	StatusSent          = "Frame sent successfully!"
	StatusNotReady      = "Image not ready"
	StatusCaptureFailed = "Error capturing frame from image."

	latencyAlpha = 0.1
)

var ErrShutdownTimeout = errors.New("stream: shutdown timed out waiting for the in-flight request")

type Detector interface {
	DetectHazard(ctx context.Context, frame models.Frame, position models.GeoPosition) (models.HazardAssessment, error)
}

type AlertSink interface {
	OnAssessment(assessment models.HazardAssessment) alert.Alert
}

type PositionProvider interface {
	Position() models.GeoPosition
}

type Options struct {
	Source    capture.Source
	Encoder   *capture.Encoder
	Detector  Detector
	Alerts    AlertSink
	Position  PositionProvider
	HazardLog store.HazardLog
	Publisher models.Publisher

	// RecordFrom is the lowest priority written to HazardLog.
	RecordFrom models.Priority

	// RequestTimeout bounds each detection call. Zero disables it.
	RequestTimeout time.Duration
	// RetryDelay is the pause after a failed capture.
	RetryDelay time.Duration

	Logger *zap.Logger
}

type Controller struct {
	source    capture.Source
	encoder   *capture.Encoder
	detector  Detector
	alerts    AlertSink
	position  PositionProvider
	hazardLog store.HazardLog
	publisher models.Publisher
	logger    *zap.Logger

	requestTimeout time.Duration
	retryDelay     time.Duration
	recordFrom     models.Priority

	mu      sync.Mutex
	state   models.SessionState
	status  string
	current *models.HazardAssessment
	stats   models.SessionStats
	done    chan struct{}
	wake    chan struct{}
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	encoder := opts.Encoder
	if encoder == nil {
		encoder = capture.NewEncoder(capture.DefaultQuality)
	}
	source := opts.Source
	if source == nil {
		source = capture.NewSwitcher(nil)
	}
	position := opts.Position
	if position == nil {
		position = NewPositionHolder(models.GeoPosition{})
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		source:         source,
		encoder:        encoder,
		detector:       opts.Detector,
		alerts:         opts.Alerts,
		position:       position,
		hazardLog:      opts.HazardLog,
		publisher:      opts.Publisher,
		logger:         logger,
		requestTimeout: opts.RequestTimeout,
		retryDelay:     opts.RetryDelay,
		recordFrom:     opts.RecordFrom,
		state:          models.StateIdle,
		status:         StatusIdle,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start begins a session from Idle, or withdraws a pending stop so the
// running loop carries on. It reports whether the state changed.
func (c *Controller) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	switch c.state {
	case models.StateRecording:
		return false
	case models.StateStopPending:
		c.state = models.StateRecording
		select {
		case <-c.wake:
		default:
		}
		c.logger.Info("Pending stop withdrawn", zap.String("session_id", c.stats.SessionID))
		c.publishLocked(models.EventState, c.snapshotLocked())
		return true
	}

	c.state = models.StateRecording
	c.stats = models.SessionStats{
		SessionID: uuid.New().String(),
		StartTime: time.Now(),
	}
	c.done = make(chan struct{})
	c.wake = make(chan struct{}, 1)

	c.logger.Info("Recording started", zap.String("session_id", c.stats.SessionID))
	c.publishLocked(models.EventState, c.snapshotLocked())

	go c.run(c.done, c.wake)
	return true
}

// Stop asks the loop to halt once the current cycle resolves. The in-flight
// request is not cancelled. Stop outside Recording is a no-op.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != models.StateRecording {
		return false
	}

	c.state = models.StateStopPending
	select {
	case c.wake <- struct{}{}:
	default:
	}

	c.logger.Info("Stop requested", zap.String("session_id", c.stats.SessionID))
	c.publishLocked(models.EventState, c.snapshotLocked())
	return true
}

func (c *Controller) State() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Current returns the latest applied assessment, if any.
func (c *Controller) Current() (models.HazardAssessment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return models.HazardAssessment{}, false
	}
	return *c.current, true
}

func (c *Controller) Snapshot() models.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until the running loop, if any, has exited.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the loop and waits for it. When the wait exceeds timeout
// the in-flight request is cancelled. Start is refused afterwards.
func (c *Controller) Shutdown(timeout time.Duration) error {
	c.Stop()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := c.Wait(ctx); err != nil {
		c.logger.Warn("Shutdown timed out, cancelling in-flight request")
		c.cancel()
		c.Wait(context.Background())
		return ErrShutdownTimeout
	}

	c.cancel()
	return nil
}

func (c *Controller) run(done, wake chan struct{}) {
	defer close(done)

	for {
		captureFailed := c.cycle()

		if !c.rearm() {
			return
		}

		if captureFailed && c.retryDelay > 0 {
			timer := time.NewTimer(c.retryDelay)
			select {
			case <-timer.C:
			case <-wake:
			case <-c.ctx.Done():
			}
			timer.Stop()

			if !c.rearm() {
				return
			}
		}
	}
}

// rearm decides whether another cycle follows. A pending stop lands in Idle.
func (c *Controller) rearm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == models.StateRecording {
		return true
	}

	c.state = models.StateIdle
	c.logger.Info("Recording stopped",
		zap.String("session_id", c.stats.SessionID),
		zap.Int64("cycles", c.stats.Cycles),
		zap.Int64("succeeded", c.stats.Succeeded))
	c.publishLocked(models.EventState, c.snapshotLocked())
	return false
}

// cycle runs one capture, send and react sequence. It reports whether the
// capture step failed.
func (c *Controller) cycle() bool {
	c.mu.Lock()
	c.stats.Cycles++
	c.mu.Unlock()

	frame, err := c.encoder.Capture(c.ctx, c.source)
	if err != nil {
		status := StatusCaptureFailed
		if errors.Is(err, capture.ErrCaptureUnavailable) {
			status = StatusNotReady
		}
		c.logger.Debug("Frame capture failed", zap.Error(err))

		c.mu.Lock()
		c.stats.CaptureFailures++
		c.setStatusLocked(status)
		c.mu.Unlock()
		return true
	}

	c.setStatus(StatusSending)

	position := c.position.Position()

	ctx := c.ctx
	cancel := context.CancelFunc(func() {})
	if c.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.requestTimeout)
	}

	started := time.Now()
	assessment, err := c.detector.DetectHazard(ctx, frame, position)
	latency := time.Since(started)
	cancel()

	if err != nil {
		c.logger.Warn("Detection request failed",
			zap.Error(err),
			zap.Duration("latency", latency))

		c.mu.Lock()
		c.stats.TransportFailures++
		c.setStatusLocked(fmt.Sprintf("Error: %v", err))
		c.mu.Unlock()
		return false
	}

	c.mu.Lock()
	c.current = &assessment
	c.stats.Succeeded++
	c.updateLatencyLocked(latency)
	c.setStatusLocked(StatusSent)
	c.publishLocked(models.EventAssessment, assessment)
	sessionID := c.stats.SessionID
	c.mu.Unlock()

	c.logger.Debug("Assessment applied",
		zap.String("hazard_type", assessment.HazardType),
		zap.Stringer("priority", assessment.Priority),
		zap.Duration("latency", latency))

	if c.alerts != nil {
		c.alerts.OnAssessment(assessment)
	}

	c.record(sessionID, assessment, position)
	return false
}

func (c *Controller) record(sessionID string, assessment models.HazardAssessment, position models.GeoPosition) {
	if c.hazardLog == nil || assessment.Priority < c.recordFrom {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.hazardLog.Append(ctx, &models.HazardRecord{
		SessionID:  sessionID,
		HazardType: assessment.HazardType,
		Priority:   assessment.Priority,
		Confidence: assessment.Confidence,
		Latitude:   position.Latitude,
		Longitude:  position.Longitude,
		CreatedAt:  assessment.ReceivedAt,
	})
	if err != nil {
		c.logger.Error("Failed to record hazard", zap.Error(err))
	}
}

func (c *Controller) setStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStatusLocked(status)
}

func (c *Controller) setStatusLocked(status string) {
	c.status = status
	c.publishLocked(models.EventStatus, status)
}

func (c *Controller) updateLatencyLocked(latency time.Duration) {
	current := float64(latency.Microseconds()) / 1000

	if c.stats.AverageLatency == 0 {
		c.stats.AverageLatency = current
	} else {
		c.stats.AverageLatency = latencyAlpha*current + (1-latencyAlpha)*c.stats.AverageLatency
	}
}

func (c *Controller) snapshotLocked() models.SessionSnapshot {
	snapshot := models.SessionSnapshot{
		State:  c.state,
		Status: c.status,
		Stats:  c.stats,
	}
	if c.current != nil {
		current := *c.current
		snapshot.Assessment = &current
	}
	return snapshot
}

// publishLocked relies on publishers never blocking.
func (c *Controller) publishLocked(eventType string, data any) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(models.Event{Type: eventType, Data: data})
}
