package alert

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/san-kum/hazard-cam/server/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingPlayer struct {
	mu     sync.Mutex
	played []string
	err    error
}

func (p *recordingPlayer) Play(ctx context.Context, asset string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, asset)
	return p.err
}

func (p *recordingPlayer) assets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (l *eventLog) Publish(event models.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

var testAssets = map[Cue]string{
	CueWarning: "/static/warning.mp3",
	CueError:   "/static/error.mp3",
}

func TestForAssessment(t *testing.T) {
	tests := []struct {
		name       string
		assessment models.HazardAssessment
		severity   Severity
		message    string
		cue        Cue
	}{
		{"none", models.HazardAssessment{Priority: models.PriorityNone}, "", "", CueNone},
		{"informational", models.HazardAssessment{HazardType: "sign", Priority: models.PriorityInfo}, "", "", CueNone},
		{"warning", models.HazardAssessment{HazardType: "pothole", Priority: models.PriorityWarning}, SeverityWarning, "Hazard detected", CueWarning},
		{"critical", models.HazardAssessment{HazardType: "pothole", Priority: models.PriorityCritical}, SeverityError, "Critical Hazard detected pothole", CueError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := ForAssessment(tt.assessment)

			if alert.Cue != tt.cue {
				t.Errorf("Cue = %q, want %q", alert.Cue, tt.cue)
			}
			if tt.message == "" {
				if alert.Banner != nil {
					t.Errorf("Banner = %+v, want none", alert.Banner)
				}
				return
			}
			if alert.Banner == nil {
				t.Fatal("Banner is nil")
			}
			if alert.Banner.Severity != tt.severity || alert.Banner.Message != tt.message {
				t.Errorf("Banner = %+v", alert.Banner)
			}
		})
	}
}

func TestDispatcher_OnAssessment(t *testing.T) {
	player := &recordingPlayer{}
	events := &eventLog{}
	d := NewDispatcher(player, testAssets, events, zap.NewNop())

	d.OnAssessment(models.HazardAssessment{Priority: models.PriorityWarning})
	d.OnAssessment(models.HazardAssessment{Priority: models.PriorityNone})
	d.OnAssessment(models.HazardAssessment{HazardType: "debris", Priority: models.PriorityCritical})
	d.Wait()

	played := player.assets()
	if len(played) != 2 {
		t.Fatalf("played %v, want two cues", played)
	}
	seen := map[string]bool{played[0]: true, played[1]: true}
	if !seen["/static/warning.mp3"] || !seen["/static/error.mp3"] {
		t.Errorf("played %v", played)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.events) != 3 {
		t.Fatalf("published %d events, want 3", len(events.events))
	}
	for _, e := range events.events {
		if e.Type != models.EventAlert {
			t.Errorf("event type = %q", e.Type)
		}
	}
	if cleared := events.events[1].Data.(Alert); cleared.Banner != nil {
		t.Errorf("priority 0 should clear the banner, got %+v", cleared.Banner)
	}
	if critical := events.events[2].Data.(Alert); critical.Asset != "/static/error.mp3" {
		t.Errorf("critical asset = %q", critical.Asset)
	}
}

func TestDispatcher_RepeatsCue(t *testing.T) {
	player := &recordingPlayer{}
	d := NewDispatcher(player, testAssets, nil, zap.NewNop())

	for i := 0; i < 3; i++ {
		d.OnAssessment(models.HazardAssessment{Priority: models.PriorityWarning})
		d.Wait()
	}

	if got := len(player.assets()); got != 3 {
		t.Errorf("played %d cues, want 3", got)
	}
}

// blockingPlayer holds every playback until release is closed.
type blockingPlayer struct {
	started chan string
	release chan struct{}

	calls   atomic.Int32
	playing atomic.Int32
	peak    atomic.Int32
}

func newBlockingPlayer() *blockingPlayer {
	return &blockingPlayer{
		started: make(chan string, 64),
		release: make(chan struct{}),
	}
}

func (p *blockingPlayer) Play(ctx context.Context, asset string) error {
	p.calls.Add(1)
	n := p.playing.Add(1)
	defer p.playing.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.started <- asset

	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestDispatcher_DoesNotWaitForPlayback(t *testing.T) {
	player := newBlockingPlayer()
	d := NewDispatcher(player, testAssets, nil, zap.NewNop())

	returned := make(chan Alert, 1)
	go func() {
		returned <- d.OnAssessment(models.HazardAssessment{HazardType: "debris", Priority: models.PriorityCritical})
	}()

	select {
	case alert := <-returned:
		if alert.Cue != CueError {
			t.Errorf("Cue = %q, want %q", alert.Cue, CueError)
		}
	case <-time.After(time.Second):
		t.Fatal("OnAssessment blocked on playback")
	}

	select {
	case <-player.started:
	case <-time.After(2 * time.Second):
		t.Fatal("playback never started")
	}

	close(player.release)
	d.Wait()
}

func TestDispatcher_CueNeverOverlapsItself(t *testing.T) {
	player := newBlockingPlayer()
	events := &eventLog{}
	d := NewDispatcher(player, testAssets, events, zap.NewNop())

	d.OnAssessment(models.HazardAssessment{HazardType: "debris", Priority: models.PriorityCritical})
	select {
	case <-player.started:
	case <-time.After(2 * time.Second):
		t.Fatal("playback never started")
	}

	for i := 0; i < 50; i++ {
		d.OnAssessment(models.HazardAssessment{HazardType: "debris", Priority: models.PriorityCritical})
	}
	d.OnAssessment(models.HazardAssessment{Priority: models.PriorityWarning})
	select {
	case asset := <-player.started:
		if asset != "/static/warning.mp3" {
			t.Errorf("second playback = %q, want the warning cue", asset)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("a different cue should still play")
	}

	if got := player.calls.Load(); got != 2 {
		t.Errorf("Play called %d times, want 2", got)
	}

	close(player.release)
	d.Wait()

	if peak := player.peak.Load(); peak != 2 {
		t.Errorf("peak concurrent playbacks = %d, want 2 (one per cue)", peak)
	}

	events.mu.Lock()
	published := len(events.events)
	events.mu.Unlock()
	if published != 52 {
		t.Errorf("published %d alerts, want 52", published)
	}

	player.release = make(chan struct{})
	close(player.release)
	d.OnAssessment(models.HazardAssessment{HazardType: "debris", Priority: models.PriorityCritical})
	d.Wait()
	if got := player.calls.Load(); got != 3 {
		t.Errorf("cue should play again once finished, Play called %d times", got)
	}
}

func TestDispatcher_PlaybackFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	player := &recordingPlayer{err: ErrPlaybackFailure}
	d := NewDispatcher(player, testAssets, nil, zap.New(core))

	alert := d.OnAssessment(models.HazardAssessment{HazardType: "debris", Priority: models.PriorityCritical})
	d.Wait()

	if alert.Banner == nil {
		t.Fatal("banner should still be produced when playback fails")
	}
	if logs.FilterMessage("Alert playback failed").Len() != 1 {
		t.Errorf("expected one playback failure log, got %v", logs.All())
	}
}

func TestDispatcher_NilPlayer(t *testing.T) {
	events := &eventLog{}
	d := NewDispatcher(nil, testAssets, events, zap.NewNop())

	alert := d.OnAssessment(models.HazardAssessment{Priority: models.PriorityWarning})
	d.Wait()

	if alert.Cue != CueWarning || alert.Asset != "/static/warning.mp3" {
		t.Errorf("alert = %+v", alert)
	}
	if len(events.events) != 1 {
		t.Errorf("published %d events, want 1", len(events.events))
	}
}

func TestCommandPlayer_Resolve(t *testing.T) {
	p, err := NewCommandPlayer("mpg123 -q", "/srv/client")
	if err != nil {
		t.Fatalf("NewCommandPlayer: %v", err)
	}
	if p.name != "mpg123" || len(p.args) != 1 || p.args[0] != "-q" {
		t.Errorf("parsed %q %v", p.name, p.args)
	}
	if got := p.resolve("/static/warning.mp3"); got != "/srv/client/warning.mp3" {
		t.Errorf("resolve = %q", got)
	}
	if got := p.resolve("/tmp/beep.wav"); got != "/tmp/beep.wav" {
		t.Errorf("resolve = %q", got)
	}
}

func TestCommandPlayer_Failure(t *testing.T) {
	p, err := NewCommandPlayer("/nonexistent/player", t.TempDir())
	if err != nil {
		t.Fatalf("NewCommandPlayer: %v", err)
	}

	err = p.Play(context.Background(), "/static/warning.mp3")
	if !errors.Is(err, ErrPlaybackFailure) {
		t.Errorf("err = %v, want ErrPlaybackFailure", err)
	}
}

func TestNewPlayer(t *testing.T) {
	if p, err := NewPlayer(PlayerNone, "", ""); err != nil || p != nil {
		t.Errorf("none player = %v, %v", p, err)
	}
	if _, err := NewPlayer(PlayerCommand, "  ", ""); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := NewPlayer("speaker", "", ""); err == nil {
		t.Error("expected error for unknown player")
	}
}
