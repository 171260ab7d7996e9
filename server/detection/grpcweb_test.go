package detection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/san-kum/hazard-cam/server/models"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type detectFunc func(ctx context.Context, req *ImageRequest) (*DetectionResponse, error)

func (f detectFunc) DetectHazard(ctx context.Context, req *ImageRequest) (*DetectionResponse, error) {
	return f(ctx, req)
}

var (
	testFrame    = models.Frame{Data: []byte{0xff, 0xd8, 0xff, 0xd9}, Width: 2, Height: 2}
	testPosition = models.GeoPosition{Latitude: 26.15, Longitude: 91.77}
)

func TestGRPCWebClient_DetectHazard(t *testing.T) {
	var mu sync.Mutex
	var seen *ImageRequest

	server := httptest.NewServer(NewGRPCWebHandler(detectFunc(func(ctx context.Context, req *ImageRequest) (*DetectionResponse, error) {
		mu.Lock()
		seen = req
		mu.Unlock()
		return &DetectionResponse{HazardType: "pothole", Priority: 2, Confidence: 0.8}, nil
	})))
	defer server.Close()

	client := NewGRPCWebClient(server.URL+"/", DefaultMethod, zap.NewNop())
	defer client.Close()

	got, err := client.DetectHazard(context.Background(), testFrame, testPosition)
	if err != nil {
		t.Fatalf("DetectHazard: %v", err)
	}

	if got.HazardType != "pothole" || got.Priority != models.PriorityWarning || got.Confidence != 0.8 {
		t.Errorf("assessment = %+v", got)
	}
	if got.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be set")
	}

	mu.Lock()
	defer mu.Unlock()
	if seen == nil {
		t.Fatal("server saw no request")
	}
	if string(seen.ImageData) != string(testFrame.Data) {
		t.Errorf("server saw image %x", seen.ImageData)
	}
	if seen.Latitude != 26.15 || seen.Longitude != 91.77 {
		t.Errorf("server saw position %v,%v", seen.Latitude, seen.Longitude)
	}
}

func TestGRPCWebClient_RequestHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != grpcWebContentType {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Grpc-Web") != "1" {
			t.Errorf("X-Grpc-Web = %q", r.Header.Get("X-Grpc-Web"))
		}
		if r.URL.Path != DefaultMethod {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", grpcWebContentType)
		w.Write(encodeFrame(frameData, nil))
		w.Write(encodeFrame(frameTrailer, []byte("grpc-status: 0\r\n")))
	}))
	defer server.Close()

	client := NewGRPCWebClient(server.URL, DefaultMethod, zap.NewNop())
	got, err := client.DetectHazard(context.Background(), testFrame, testPosition)
	if err != nil {
		t.Fatalf("DetectHazard: %v", err)
	}
	if got.Priority != models.PriorityNone || got.HazardType != "" {
		t.Errorf("empty message should decode to the clear assessment, got %+v", got)
	}
}

func TestGRPCWebClient_Failures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.Handler
		malformed bool
		code      int
	}{
		{
			name: "trailers-only status",
			handler: NewGRPCWebHandler(detectFunc(func(ctx context.Context, req *ImageRequest) (*DetectionResponse, error) {
				return nil, status.Error(codes.Unavailable, "model offline")
			})),
			code: int(codes.Unavailable),
		},
		{
			name: "status in trailer frame",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", grpcWebContentType)
				w.Write(encodeFrame(frameTrailer, []byte("grpc-status: 13\r\ngrpc-message: boom\r\n")))
			}),
			code: int(codes.Internal),
		},
		{
			name: "http error",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad gateway", http.StatusBadGateway)
			}),
		},
		{
			name: "priority out of range",
			handler: NewGRPCWebHandler(detectFunc(func(ctx context.Context, req *ImageRequest) (*DetectionResponse, error) {
				return &DetectionResponse{HazardType: "pothole", Priority: 7}, nil
			})),
			malformed: true,
		},
		{
			name: "no message",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", grpcWebContentType)
				w.Write(encodeFrame(frameTrailer, []byte("grpc-status: 0\r\n")))
			}),
			malformed: true,
		},
		{
			name: "truncated frame",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", grpcWebContentType)
				w.Write(encodeFrame(frameData, []byte{0x10, 0x01})[:4])
			}),
			malformed: true,
		},
		{
			name: "compressed frame",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", grpcWebContentType)
				w.Write(encodeFrame(frameCompressed, []byte{0x10, 0x01}))
			}),
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewGRPCWebClient(server.URL, DefaultMethod, zap.NewNop())
			_, err := client.DetectHazard(context.Background(), testFrame, testPosition)
			if !errors.Is(err, ErrTransportFailure) {
				t.Fatalf("err = %v, want ErrTransportFailure", err)
			}
			if tt.malformed && !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("err = %v, want ErrMalformedResponse", err)
			}
			if tt.code != 0 {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("err = %v, want StatusError", err)
				}
				if statusErr.Code != tt.code {
					t.Errorf("Code = %d, want %d", statusErr.Code, tt.code)
				}
			}
		})
	}
}

func TestGRPCWebClient_StatusMessageDecoded(t *testing.T) {
	server := httptest.NewServer(NewGRPCWebHandler(detectFunc(func(ctx context.Context, req *ImageRequest) (*DetectionResponse, error) {
		return nil, status.Error(codes.InvalidArgument, "image not decodable")
	})))
	defer server.Close()

	client := NewGRPCWebClient(server.URL, DefaultMethod, zap.NewNop())
	_, err := client.DetectHazard(context.Background(), testFrame, testPosition)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if statusErr.Message != "image not decodable" {
		t.Errorf("Message = %q", statusErr.Message)
	}
}

func TestGRPCWebClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewGRPCWebClient(server.URL, DefaultMethod, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.DetectHazard(ctx, testFrame, testPosition)
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("err = %v, want ErrTransportFailure", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(Options{Endpoint: "http://localhost:8080", Transport: "rest"}, zap.NewNop()); err == nil {
		t.Error("expected error for unknown transport")
	}

	client, err := NewClient(Options{Endpoint: "http://localhost:8080"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	web, ok := client.(*GRPCWebClient)
	if !ok {
		t.Fatalf("default transport = %T, want *GRPCWebClient", client)
	}
	if web.method != DefaultMethod {
		t.Errorf("method = %q, want default", web.method)
	}
}

func TestGRPCTarget(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080/": "localhost:8080",
		"https://detector:443":   "detector:443",
		"10.0.0.5:50051":         "10.0.0.5:50051",
		" http://host:1 ":        "host:1",
	}
	for in, want := range tests {
		if got := grpcTarget(in); got != want {
			t.Errorf("grpcTarget(%q) = %q, want %q", in, got, want)
		}
	}
}
