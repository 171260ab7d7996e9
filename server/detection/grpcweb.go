package detection

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/hazard-cam/server/models"
	"go.uber.org/zap"
)

const (
	grpcWebContentType = "application/grpc-web+proto"

	frameData       byte = 0x00
	frameTrailer    byte = 0x80
	frameCompressed byte = 0x01

	maxMessageSize = 4 << 20
)

// GRPCWebClient speaks gRPC-Web over plain HTTP/1.1, which is what a
// grpcweb-wrapped Go server accepts without TLS or h2c.
type GRPCWebClient struct {
	endpoint   string
	method     string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewGRPCWebClient(endpoint, method string, logger *zap.Logger) *GRPCWebClient {
	return &GRPCWebClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		method:   method,
		logger:   logger,
		now:      time.Now,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}
}

func (c *GRPCWebClient) DetectHazard(ctx context.Context, frame models.Frame, position models.GeoPosition) (models.HazardAssessment, error) {
	req := newRequest(frame, position)

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+c.method,
		bytes.NewReader(encodeFrame(frameData, req.Marshal())))
	if err != nil {
		return models.HazardAssessment{}, transportError(fmt.Errorf("failed to create request: %w", err))
	}

	httpRequest.Header.Set("Content-Type", grpcWebContentType)
	httpRequest.Header.Set("Accept", grpcWebContentType)
	httpRequest.Header.Set("X-Grpc-Web", "1")
	httpRequest.Header.Set("X-User-Agent", "hazard-cam/1.0")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return models.HazardAssessment{}, transportError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer response.Body.Close()

	payload, err := readGRPCWebResponse(response)
	if err != nil {
		return models.HazardAssessment{}, transportError(err)
	}

	var resp DetectionResponse
	if err := resp.Unmarshal(payload); err != nil {
		return models.HazardAssessment{}, transportError(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}

	assessment, err := toAssessment(&resp, c.now())
	if err != nil {
		return models.HazardAssessment{}, transportError(err)
	}

	c.logger.Debug("Detection response received",
		zap.String("hazard_type", assessment.HazardType),
		zap.Int32("priority", resp.Priority),
		zap.Float32("confidence", resp.Confidence))

	return assessment, nil
}

func (c *GRPCWebClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func encodeFrame(flag byte, payload []byte) []byte {
	out := make([]byte, 5+len(payload))
	out[0] = flag
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	copy(out[5:], payload)
	return out
}

// readGRPCWebResponse returns the single data frame of a unary reply after
// checking the RPC status, which may arrive as headers (trailers-only) or
// in a trailer frame.
func readGRPCWebResponse(response *http.Response) ([]byte, error) {
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return nil, fmt.Errorf("detection service error (status %d): %s",
			response.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := statusFrom(response.Header); err != nil {
		return nil, err
	}

	var message []byte
	var received bool
	var header [5]byte
	trailers := http.Header{}

	for {
		if _, err := io.ReadFull(response.Body, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: truncated frame header: %v", ErrMalformedResponse, err)
		}

		length := binary.BigEndian.Uint32(header[1:])
		if length > maxMessageSize {
			return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrMalformedResponse, length)
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(response.Body, payload); err != nil {
			return nil, fmt.Errorf("%w: truncated frame: %v", ErrMalformedResponse, err)
		}

		flag := header[0]
		switch {
		case flag&frameTrailer != 0:
			parseTrailers(payload, trailers)
		case flag&frameCompressed != 0:
			return nil, fmt.Errorf("%w: compressed frames are not supported", ErrMalformedResponse)
		case !received:
			message = payload
			received = true
		}
	}

	if err := statusFrom(trailers); err != nil {
		return nil, err
	}

	if !received {
		return nil, fmt.Errorf("%w: no message in response", ErrMalformedResponse)
	}

	return message, nil
}

func parseTrailers(payload []byte, into http.Header) {
	for _, line := range strings.Split(string(payload), "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		into.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
}

func statusFrom(h http.Header) error {
	raw := h.Get("Grpc-Status")
	if raw == "" || raw == "0" {
		return nil
	}

	code, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid grpc-status %q", ErrMalformedResponse, raw)
	}

	message := h.Get("Grpc-Message")
	if decoded, err := url.PathUnescape(message); err == nil {
		message = decoded
	}

	return &StatusError{Code: code, Message: message}
}
