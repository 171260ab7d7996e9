//go:build !gocv

package capture

import (
	"fmt"

	"go.uber.org/zap"
)

// newDeviceSource returns an error when built without OpenCV support.
func newDeviceSource(deviceID int, logger *zap.Logger) (Source, error) {
	return nil, fmt.Errorf("capture device %d: built without gocv support (use -tags gocv)", deviceID)
}
