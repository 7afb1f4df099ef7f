package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/eva-telemetry-sim/internal/sim"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DefaultClientDialOptions returns insecure transport credentials plus the
// otelgrpc client handler so calls propagate trace context.
func DefaultClientDialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Client is a thin typed client for TelemetryFeed.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithRequestID attaches id as the x-request-id header on outgoing calls.
func WithRequestID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, id)
}

// GetSnapshot fetches the latest frame.
func (c *Client) GetSnapshot(ctx context.Context, opts ...grpc.CallOption) (sim.Frame, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetSnapshotMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return sim.Frame{}, err
	}
	return DecodeFrame(out)
}

// GetBatteryEstimate fetches the raw battery readout.
func (c *Client) GetBatteryEstimate(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetBatteryEstimateMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// FrameStream yields decoded frames from WatchSnapshots.
type FrameStream struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

// Recv blocks for the next frame. It returns io.EOF when the server ends
// the stream cleanly.
func (s *FrameStream) Recv() (sim.Frame, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return sim.Frame{}, err
	}
	return DecodeFrame(msg)
}

// Watch opens a frame stream. everyN of 0 or 1 receives every frame.
// Cancel ctx to end it.
func (c *Client) Watch(ctx context.Context, everyN uint32, opts ...grpc.CallOption) (*FrameStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchSnapshotsMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wrapperspb.UInt32Value, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(wrapperspb.UInt32(everyN)); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return &FrameStream{stream: x}, nil
}

// WaitForHealth blocks until the feed reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, cc grpc.ClientConnInterface) error {
	healthClient := healthpb.NewHealthClient(cc)
	backoff := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := healthClient.Check(callCtx, &healthpb.HealthCheckRequest{Service: ServiceName})
		cancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for feed health: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff = min(2*backoff, time.Second)
		}
	}
}
