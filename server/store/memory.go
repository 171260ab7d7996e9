package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/san-kum/hazard-cam/server/models"
)

// Memory keeps settings and a bounded hazard log in process. The oldest
// record is evicted once maxRecords is reached.
type Memory struct {
	mu         sync.RWMutex
	settings   map[string]string
	records    []models.HazardRecord
	maxRecords int
}

func NewMemory(maxRecords int) *Memory {
	if maxRecords <= 0 {
		maxRecords = MaxListLimit
	}
	return &Memory{
		settings:   make(map[string]string),
		maxRecords: maxRecords,
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.settings[key]
	if !ok {
		return "", fmt.Errorf("%w: setting %q", ErrNotFound, key)
	}
	return value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[key] = value
	return nil
}

func (m *Memory) Append(ctx context.Context, record *models.HazardRecord) error {
	prepareRecord(record)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.records) >= m.maxRecords {
		m.records = m.records[1:]
	}
	m.records = append(m.records, *record)
	return nil
}

func (m *Memory) List(ctx context.Context, limit int) ([]models.HazardRecord, error) {
	limit = clampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.HazardRecord, 0, min(limit, len(m.records)))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}
