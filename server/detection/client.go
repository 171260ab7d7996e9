// Package detection is the client side of the HazardDetection RPC contract.
package detection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/san-kum/hazard-cam/server/models"
	"go.uber.org/zap"
)

const (
	DefaultMethod = "/hazard.HazardDetection/DetectHazard"

	TransportGRPCWeb = "grpcweb"
	TransportGRPC    = "grpc"
)

// Client sends one frame and returns one assessment. It never retries.
type Client interface {
	DetectHazard(ctx context.Context, frame models.Frame, position models.GeoPosition) (models.HazardAssessment, error)
	Close() error
}

type Options struct {
	Endpoint  string
	Transport string
	Method    string
}

func NewClient(opts Options, logger *zap.Logger) (Client, error) {
	if opts.Method == "" {
		opts.Method = DefaultMethod
	}

	switch opts.Transport {
	case TransportGRPCWeb, "":
		return NewGRPCWebClient(opts.Endpoint, opts.Method, logger), nil
	case TransportGRPC:
		return NewGRPCClient(grpcTarget(opts.Endpoint), opts.Method, logger)
	default:
		return nil, fmt.Errorf("unknown detection transport %q", opts.Transport)
	}
}

func newRequest(frame models.Frame, position models.GeoPosition) *ImageRequest {
	return &ImageRequest{
		ImageData: frame.Data,
		Latitude:  position.Latitude,
		Longitude: position.Longitude,
	}
}

func toAssessment(resp *DetectionResponse, receivedAt time.Time) (models.HazardAssessment, error) {
	priority := models.Priority(resp.Priority)
	if !priority.Valid() {
		return models.HazardAssessment{}, fmt.Errorf("%w: priority %d", ErrMalformedResponse, resp.Priority)
	}

	return models.HazardAssessment{
		HazardType: resp.HazardType,
		Priority:   priority,
		Confidence: resp.Confidence,
		ReceivedAt: receivedAt,
	}, nil
}

// grpcTarget strips an http(s) scheme so the gRPC-Web endpoint setting can
// be reused as a dial target.
func grpcTarget(endpoint string) string {
	target := strings.TrimSpace(endpoint)
	target = strings.TrimPrefix(target, "http://")
	target = strings.TrimPrefix(target, "https://")
	return strings.TrimRight(target, "/")
}
