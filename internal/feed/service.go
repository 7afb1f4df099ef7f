// Package feed serves simulator frames over gRPC.
package feed

import (
	"context"

	"github.com/signalsfoundry/eva-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/sim"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "eva.telemetry.v1.TelemetryFeed"

// Full method names, as seen by interceptors.
const (
	GetSnapshotMethod        = "/" + ServiceName + "/GetSnapshot"
	WatchSnapshotsMethod     = "/" + ServiceName + "/WatchSnapshots"
	GetBatteryEstimateMethod = "/" + ServiceName + "/GetBatteryEstimate"
)

// DefaultWatchBuffer is the per-watcher frame buffer when none is set.
const DefaultWatchBuffer = 16

// TelemetryFeedServer is the server API for the TelemetryFeed service.
type TelemetryFeedServer interface {
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchSnapshots(*wrapperspb.UInt32Value, grpc.ServerStreamingServer[structpb.Struct]) error
	GetBatteryEstimate(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes TelemetryFeed. Messages are protobuf well-known types
// so no generated code is needed.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryFeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
		{MethodName: "GetBatteryEstimate", Handler: getBatteryEstimateHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchSnapshots", Handler: watchSnapshotsHandler, ServerStreams: true},
	},
	Metadata: "eva/telemetry/v1/feed.proto",
}

// RegisterTelemetryFeedServer registers srv on s.
func RegisterTelemetryFeedServer(s grpc.ServiceRegistrar, srv TelemetryFeedServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func getSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryFeedServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TelemetryFeedServer).GetSnapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getBatteryEstimateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryFeedServer).GetBatteryEstimate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetBatteryEstimateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TelemetryFeedServer).GetBatteryEstimate(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchSnapshotsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(wrapperspb.UInt32Value)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TelemetryFeedServer).WatchSnapshots(in, &grpc.GenericServerStream[wrapperspb.UInt32Value, structpb.Struct]{ServerStream: stream})
}

// FrameSource is the part of *sim.Simulator the feed reads from.
type FrameSource interface {
	Frame() sim.Frame
	Subscribe(buffer int) (<-chan sim.Frame, func())
	Err() error
}

// Service implements TelemetryFeedServer over a FrameSource.
type Service struct {
	src    FrameSource
	buffer int
	log    logging.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithWatchBuffer sets the per-watcher frame buffer.
func WithWatchBuffer(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// NewService constructs a Service reading from src.
func NewService(src FrameSource, log logging.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = logging.Noop()
	}
	s := &Service{src: src, buffer: DefaultWatchBuffer, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSnapshot returns the latest frame. The last good frame stays readable
// after a fatal simulator failure.
func (s *Service) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	f := s.src.Frame()
	out, err := EncodeFrame(f)
	if err != nil {
		logging.FromContext(ctx, s.log).Error(ctx, "encode frame failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return out, nil
}

// GetBatteryEstimate returns the battery readout of the latest frame.
func (s *Service) GetBatteryEstimate(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	f := s.src.Frame()
	_, span := StartChildSpan(ctx, "EstimateBatteryTime",
		attribute.Int64("mission_time_ticks", f.Snapshot.MissionTimeTicks),
		attribute.Bool("battery_infinite", f.Battery.Infinite),
	)
	defer span.End()

	out, err := EncodeBattery(f)
	if err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}
	return out, nil
}

// WatchSnapshots sends the current frame, then every published frame whose
// mission tick is a multiple of every_n, until the client goes away or the
// simulator shuts down.
func (s *Service) WatchSnapshots(req *wrapperspb.UInt32Value, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	log := logging.FromContext(ctx, s.log)

	if err := s.src.Err(); err != nil {
		return ToStatusError(err)
	}
	everyN := int64(req.GetValue())
	if everyN < 1 {
		everyN = 1
	}

	// Subscribe before reading the current frame so nothing published in
	// between is lost; duplicates are dropped by tick.
	frames, cancel := s.src.Subscribe(s.buffer)
	defer cancel()

	current := s.src.Frame()
	if err := s.send(stream, current); err != nil {
		return err
	}
	last := current.Snapshot.MissionTimeTicks
	log.Debug(ctx, "watch started", logging.Int64("every_n", everyN), logging.Int64("mission_time_ticks", last))

	for {
		select {
		case <-ctx.Done():
			log.Debug(ctx, "watch ended by client", logging.Int64("mission_time_ticks", last))
			return nil
		case f, ok := <-frames:
			if !ok {
				if err := s.src.Err(); err != nil {
					return ToStatusError(err)
				}
				return ToStatusError(sim.ErrClosed)
			}
			tick := f.Snapshot.MissionTimeTicks
			if tick <= last || tick%everyN != 0 {
				continue
			}
			if err := s.send(stream, f); err != nil {
				return err
			}
			last = tick
		}
	}
}

func (s *Service) send(stream grpc.ServerStreamingServer[structpb.Struct], f sim.Frame) error {
	msg, err := EncodeFrame(f)
	if err != nil {
		return ToStatusError(err)
	}
	return stream.Send(msg)
}
