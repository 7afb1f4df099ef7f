package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/eva-telemetry-sim/core"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/sim"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	invalid := core.InitialState()
	invalid.Position = 999
	_, stepErr := core.Step(invalid)
	if stepErr == nil {
		t.Fatalf("expected invalid state error from core.Step")
	}

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "invalid state", err: stepErr, code: codes.FailedPrecondition},
		{name: "wrapped invalid state", err: fmt.Errorf("tick 4: %w", core.ErrInvalidState), code: codes.FailedPrecondition},
		{name: "not running", err: sim.ErrNotRunning, code: codes.Unavailable},
		{name: "closed", err: sim.ErrClosed, code: codes.Unavailable},
		{name: "bad tick", err: fmt.Errorf("%w: 0s", sim.ErrBadTickInterval), code: codes.InvalidArgument},
		{name: "canceled", err: context.Canceled, code: codes.Canceled},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("ToStatusError(%v) = nil, want error", tc.err)
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}
