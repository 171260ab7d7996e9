// Package store persists the camera endpoint and the hazard log.
package store

import (
	"context"
	"errors"

	"github.com/san-kum/hazard-cam/server/models"
)

const KeyCameraURL = "camera_url"

var ErrNotFound = errors.New("store: not found")

type Settings interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type HazardLog interface {
	Append(ctx context.Context, record *models.HazardRecord) error
	List(ctx context.Context, limit int) ([]models.HazardRecord, error)
}
