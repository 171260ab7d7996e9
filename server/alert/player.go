package alert

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	PlayerNone    = "none"
	PlayerCommand = "command"

	staticPrefix = "/static/"
)

// CommandPlayer runs an external player with the asset path as its last
// argument. Assets under /static/ resolve inside the static directory.
type CommandPlayer struct {
	name      string
	args      []string
	staticDir string
}

func NewCommandPlayer(command, staticDir string) (*CommandPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("alert player command is empty")
	}
	return &CommandPlayer{name: fields[0], args: fields[1:], staticDir: staticDir}, nil
}

func (p *CommandPlayer) Play(ctx context.Context, asset string) error {
	args := append(append([]string{}, p.args...), p.resolve(asset))

	output, err := exec.CommandContext(ctx, p.name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrPlaybackFailure, p.name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (p *CommandPlayer) resolve(asset string) string {
	if strings.HasPrefix(asset, staticPrefix) {
		return filepath.Join(p.staticDir, filepath.FromSlash(strings.TrimPrefix(asset, staticPrefix)))
	}
	return asset
}

// NewPlayer builds the player named by kind. "none" yields a nil Player and
// leaves playback to connected browser clients.
func NewPlayer(kind, command, staticDir string) (Player, error) {
	switch kind {
	case PlayerNone, "":
		return nil, nil
	case PlayerCommand:
		player, err := NewCommandPlayer(command, staticDir)
		if err != nil {
			return nil, err
		}
		return player, nil
	default:
		return nil, fmt.Errorf("unknown alert player %q", kind)
	}
}
