package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/hazard-cam/server/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type HazardRepository struct {
	db *DB
}

// Append assigns an ID and timestamp when they are missing.
func (r *HazardRepository) Append(ctx context.Context, record *models.HazardRecord) error {
	prepareRecord(record)

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO hazards (id, session_id, hazard_type, priority, confidence, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.SessionID, record.HazardType, int32(record.Priority), float64(record.Confidence),
		record.Latitude, record.Longitude, record.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert hazard: %w", err)
	}

	if r.db.maxHazards > 0 {
		_, err = r.db.conn.ExecContext(ctx, `
			DELETE FROM hazards WHERE rowid <= (
				SELECT rowid FROM hazards ORDER BY rowid DESC LIMIT 1 OFFSET ?
			)
		`, r.db.maxHazards)
		if err != nil {
			return fmt.Errorf("failed to prune hazards: %w", err)
		}
	}

	return nil
}

// List returns the newest records first.
func (r *HazardRepository) List(ctx context.Context, limit int) ([]models.HazardRecord, error) {
	limit = clampLimit(limit)

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, session_id, hazard_type, priority, confidence, latitude, longitude, created_at
		FROM hazards ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hazards: %w", err)
	}
	defer rows.Close()

	records := make([]models.HazardRecord, 0, limit)
	for rows.Next() {
		var rec models.HazardRecord
		var priority int32
		var confidence float64
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.HazardType, &priority, &confidence,
			&rec.Latitude, &rec.Longitude, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan hazard: %w", err)
		}
		rec.Priority = models.Priority(priority)
		rec.Confidence = float32(confidence)
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hazards: %w", err)
	}

	return records, nil
}

func prepareRecord(record *models.HazardRecord) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
