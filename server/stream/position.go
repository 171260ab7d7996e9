package stream

import (
	"sync"

	"github.com/san-kum/hazard-cam/server/models"
)

// PositionHolder supplies the position attached to each frame. It starts at
// a configured fallback and is updated by clients.
type PositionHolder struct {
	mu       sync.RWMutex
	position models.GeoPosition
}

func NewPositionHolder(initial models.GeoPosition) *PositionHolder {
	return &PositionHolder{position: initial}
}

func (h *PositionHolder) Position() models.GeoPosition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.position
}

func (h *PositionHolder) Set(position models.GeoPosition) error {
	if err := position.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	h.position = position
	h.mu.Unlock()
	return nil
}
