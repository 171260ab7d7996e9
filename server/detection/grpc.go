package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/hazard-cam/server/models"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCClient calls the service over native gRPC (HTTP/2).
type GRPCClient struct {
	conn   *grpc.ClientConn
	method string
	logger *zap.Logger
	now    func() time.Time
}

func NewGRPCClient(target, method string, logger *zap.Logger, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wireCodec{})),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", target, err)
	}

	return &GRPCClient{
		conn:   conn,
		method: method,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (c *GRPCClient) DetectHazard(ctx context.Context, frame models.Frame, position models.GeoPosition) (models.HazardAssessment, error) {
	req := newRequest(frame, position)

	var resp DetectionResponse
	if err := c.conn.Invoke(ctx, c.method, req, &resp); err != nil {
		if st, ok := status.FromError(err); ok {
			return models.HazardAssessment{}, transportError(&StatusError{Code: int(st.Code()), Message: st.Message()})
		}
		return models.HazardAssessment{}, transportError(err)
	}

	assessment, err := toAssessment(&resp, c.now())
	if err != nil {
		return models.HazardAssessment{}, transportError(err)
	}

	c.logger.Debug("Detection response received",
		zap.String("hazard_type", assessment.HazardType),
		zap.Int32("priority", resp.Priority))

	return assessment, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
