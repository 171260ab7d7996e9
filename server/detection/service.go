package detection

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// HazardDetectionServer is the service side of the contract.
type HazardDetectionServer interface {
	DetectHazard(ctx context.Context, req *ImageRequest) (*DetectionResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "hazard.HazardDetection",
	HandlerType: (*HazardDetectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "DetectHazard",
			Handler:    detectHazardHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hazard.proto",
}

func RegisterHazardDetectionServer(s grpc.ServiceRegistrar, srv HazardDetectionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServerCodec must be passed to grpc.NewServer so it can decode the messages.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(wireCodec{})
}

func detectHazardHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ImageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HazardDetectionServer).DetectHazard(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DefaultMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HazardDetectionServer).DetectHazard(ctx, req.(*ImageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// NewGRPCWebHandler serves the unary method to gRPC-Web clients over HTTP/1.1.
func NewGRPCWebHandler(srv HazardDetectionServer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != DefaultMethod {
			http.NotFound(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize+5))
		if err != nil || len(body) < 5 {
			writeGRPCWebStatus(w, status.New(codes.InvalidArgument, "missing request frame"))
			return
		}

		var req ImageRequest
		if err := req.Unmarshal(body[5:]); err != nil {
			writeGRPCWebStatus(w, status.New(codes.InvalidArgument, err.Error()))
			return
		}

		resp, err := srv.DetectHazard(r.Context(), &req)
		if err != nil {
			writeGRPCWebStatus(w, status.Convert(err))
			return
		}

		w.Header().Set("Content-Type", grpcWebContentType)
		w.WriteHeader(http.StatusOK)
		w.Write(encodeFrame(frameData, resp.Marshal()))
		w.Write(encodeFrame(frameTrailer, []byte("grpc-status: 0\r\ngrpc-message: \r\n")))
	})
}

func writeGRPCWebStatus(w http.ResponseWriter, st *status.Status) {
	w.Header().Set("Content-Type", grpcWebContentType)
	w.Header().Set("Grpc-Status", strconv.Itoa(int(st.Code())))
	w.Header().Set("Grpc-Message", url.PathEscape(st.Message()))
	w.WriteHeader(http.StatusOK)
}
