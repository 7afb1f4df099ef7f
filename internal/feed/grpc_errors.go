package feed

import (
	"context"
	"errors"

	"github.com/signalsfoundry/eva-telemetry-sim/core"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/sim"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatusError maps simulator errors onto gRPC status codes for the feed.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, core.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, sim.ErrNotRunning),
		errors.Is(err, sim.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, sim.ErrBadTickInterval):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
