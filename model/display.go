package model

import (
	"math"

	"github.com/signalsfoundry/eva-telemetry-sim/core"
)

// CompactViewportWidth is the breakpoint below which the HUD uses its
// handheld layout.
const CompactViewportWidth = 768

// MaxTiltDegrees bounds each tilt axis applied to the video layer.
const MaxTiltDegrees = 30.0

// uprightBeta is the device pitch treated as "looking straight ahead".
const uprightBeta = 45.0

// Tilt is the rotation applied to the display's video layer. It never
// influences the simulation.
type Tilt struct {
	X float64 // degrees, from gamma
	Y float64 // degrees, from beta
}

// TiltFromOrientation maps raw device-orientation angles to a clamped tilt.
// NaN inputs are treated as 0.
func TiltFromOrientation(beta, gamma float64) Tilt {
	return Tilt{
		X: clampTilt(zeroNaN(gamma)),
		Y: clampTilt(zeroNaN(beta) - uprightBeta),
	}
}

func clampTilt(v float64) float64 {
	return math.Max(-MaxTiltDegrees, math.Min(MaxTiltDegrees, v))
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// Viewport is the display surface size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Compact reports whether the viewport is below the handheld breakpoint.
func (v Viewport) Compact() bool {
	return v.Width < CompactViewportWidth
}

// TiltSource is implemented by the display layer when it has a motion
// sensor. The simulator never depends on it.
type TiltSource interface {
	Tilt() (Tilt, bool)
}

// ViewportObserver is implemented by the display layer to report resizes.
type ViewportObserver interface {
	Viewport() Viewport
	OnResize(func(Viewport)) (unsubscribe func())
}

// SnapshotSource is what a display consumer polls. *sim.Simulator
// implements it.
type SnapshotSource interface {
	Snapshot() core.Snapshot
}
