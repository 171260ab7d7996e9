// Package alert turns the current hazard assessment into a banner and an
// audio cue.
package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/san-kum/hazard-cam/server/models"
	"go.uber.org/zap"
)

var ErrPlaybackFailure = errors.New("alert: playback failed")

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Cue string

const (
	CueNone    Cue = ""
	CueWarning Cue = "warning"
	CueError   Cue = "error"
)

const criticalPrefix = "Critical Hazard detected "

type Banner struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Alert is the reaction to one assessment. A nil Banner clears whatever
// banner is shown.
type Alert struct {
	Banner     *Banner         `json:"banner"`
	Cue        Cue             `json:"cue,omitempty"`
	Asset      string          `json:"asset,omitempty"`
	HazardType string          `json:"hazard_type"`
	Priority   models.Priority `json:"priority"`
}

// ForAssessment maps an assessment to its alert without side effects.
func ForAssessment(a models.HazardAssessment) Alert {
	alert := Alert{HazardType: a.HazardType, Priority: a.Priority}

	switch a.Priority {
	case models.PriorityWarning:
		alert.Banner = &Banner{Severity: SeverityWarning, Message: "Hazard detected"}
		alert.Cue = CueWarning
	case models.PriorityCritical:
		alert.Banner = &Banner{Severity: SeverityError, Message: criticalPrefix + a.HazardType}
		alert.Cue = CueError
	}

	return alert
}

// Player plays one audio asset to completion.
type Player interface {
	Play(ctx context.Context, asset string) error
}

type Dispatcher struct {
	player      Player
	assets      map[Cue]string
	publisher   models.Publisher
	logger      *zap.Logger
	playTimeout time.Duration

	mu      sync.Mutex
	playing map[Cue]bool
	wg      sync.WaitGroup
}

func NewDispatcher(player Player, assets map[Cue]string, publisher models.Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		player:      player,
		assets:      assets,
		publisher:   publisher,
		logger:      logger,
		playTimeout: 30 * time.Second,
		playing:     make(map[Cue]bool),
	}
}

// OnAssessment publishes the alert for a and starts its cue without waiting
// for playback. It runs for every assessment, repeated ones included, but a
// cue that is still playing is not started a second time.
func (d *Dispatcher) OnAssessment(a models.HazardAssessment) Alert {
	alert := ForAssessment(a)
	if alert.Cue != CueNone {
		alert.Asset = d.assets[alert.Cue]
	}

	if d.publisher != nil {
		d.publisher.Publish(models.Event{Type: models.EventAlert, Data: alert})
	}

	if alert.Cue != CueNone && alert.Asset != "" && d.player != nil && d.claim(alert.Cue) {
		d.wg.Add(1)
		go d.play(alert.Cue, alert.Asset)
	}

	return alert
}

func (d *Dispatcher) claim(cue Cue) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.playing[cue] {
		d.logger.Debug("Cue still playing, not restarted", zap.String("cue", string(cue)))
		return false
	}
	d.playing[cue] = true
	return true
}

func (d *Dispatcher) release(cue Cue) {
	d.mu.Lock()
	delete(d.playing, cue)
	d.mu.Unlock()
}

func (d *Dispatcher) play(cue Cue, asset string) {
	defer d.wg.Done()
	defer d.release(cue)

	ctx, cancel := context.WithTimeout(context.Background(), d.playTimeout)
	defer cancel()

	if err := d.player.Play(ctx, asset); err != nil {
		d.logger.Warn("Alert playback failed",
			zap.String("cue", string(cue)),
			zap.String("asset", asset),
			zap.Error(err))
	}
}

// Wait blocks until every started playback has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
