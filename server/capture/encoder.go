package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"time"

	"github.com/san-kum/hazard-cam/server/models"
)

const DefaultQuality = 60

// Encoder rasterizes a source's current content and compresses it to JPEG.
// It keeps no state between calls.
type Encoder struct {
	quality int
	now     func() time.Time
}

func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{quality: quality, now: time.Now}
}

func (e *Encoder) Quality() int { return e.quality }

// Capture grabs the current content of src as a JPEG frame.
func (e *Encoder) Capture(ctx context.Context, src Source) (models.Frame, error) {
	img, err := src.Snapshot(ctx)
	if err != nil {
		return models.Frame{}, err
	}
	if img == nil {
		return models.Frame{}, ErrCaptureUnavailable
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return models.Frame{}, ErrCaptureUnavailable
	}

	raster := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(raster, raster.Bounds(), img, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, raster, &jpeg.Options{Quality: e.quality}); err != nil {
		return models.Frame{}, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}

	return models.Frame{
		Data:       buf.Bytes(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: e.now(),
	}, nil
}
