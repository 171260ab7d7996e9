//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DeviceSource reads frames from a local capture device through OpenCV.
type DeviceSource struct {
	mu     sync.Mutex
	device *gocv.VideoCapture
	mat    gocv.Mat
	logger *zap.Logger
}

func newDeviceSource(deviceID int, logger *zap.Logger) (Source, error) {
	device, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %d: %w", deviceID, err)
	}

	logger.Info("Capture device opened", zap.Int("device_id", deviceID))

	return &DeviceSource{
		device: device,
		mat:    gocv.NewMat(),
		logger: logger,
	}, nil
}

func (d *DeviceSource) Snapshot(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ok := d.device.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, ErrCaptureUnavailable
	}

	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}
	return img, nil
}

func (d *DeviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mat.Close()
	return d.device.Close()
}
