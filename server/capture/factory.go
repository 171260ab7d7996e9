package capture

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	ModeMJPEG    = "mjpeg"
	ModeSnapshot = "snapshot"
	ModeDevice   = "device"
)

var ErrNoEndpoint = errors.New("capture: camera endpoint not configured")

type Options struct {
	Mode         string
	URL          string
	StreamPath   string
	SnapshotPath string
	DeviceID     int
	StaleAfter   time.Duration
	MaxBackoff   time.Duration
}

// New builds the Source selected by opts.Mode.
func New(opts Options, logger *zap.Logger) (Source, error) {
	switch opts.Mode {
	case ModeMJPEG, "":
		if opts.URL == "" {
			return nil, ErrNoEndpoint
		}
		return NewMJPEGSource(JoinURL(opts.URL, opts.StreamPath), opts.StaleAfter, opts.MaxBackoff, logger), nil
	case ModeSnapshot:
		if opts.URL == "" {
			return nil, ErrNoEndpoint
		}
		return NewSnapshotSource(JoinURL(opts.URL, opts.SnapshotPath), 5*time.Second), nil
	case ModeDevice:
		return newDeviceSource(opts.DeviceID, logger)
	default:
		return nil, fmt.Errorf("unknown camera mode %q", opts.Mode)
	}
}

// JoinURL appends path to a camera base URL. Bare hosts get an http scheme.
func JoinURL(base, path string) string {
	base = strings.TrimSpace(base)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
