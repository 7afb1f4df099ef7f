package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/eva-telemetry-sim/core"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/sim"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformedFrame is returned by DecodeFrame when a required key is missing
// or has the wrong type.
var ErrMalformedFrame = errors.New("malformed frame")

// EncodeFrame flattens a frame into a protobuf Struct.
func EncodeFrame(f sim.Frame) (*structpb.Struct, error) {
	snap := f.Snapshot
	return structpb.NewStruct(map[string]any{
		"mission_time_ticks": snap.MissionTimeTicks,
		"mission_clock":      core.FormatMissionTime(snap.MissionTimeTicks),
		"position":           snap.Position,
		"phase":              snap.Phase.String(),
		"hazard_active":      snap.HazardActive,
		"radiation_level":    snap.RadiationLevel,
		"heart_rate":         snap.HeartRate,
		"oxygen_level":       snap.OxygenLevel,
		"solar_exposure":     snap.SolarExposure,
		"suit_battery":       snap.SuitBattery,
		"external_temp":      snap.ExternalTemp,
		"shelter_distance":   snap.ShelterDistance,
		"battery_infinite":   f.Battery.Infinite,
		"battery_minutes":    f.Battery.Minutes,
		"battery_drain_rate": f.Battery.DrainRate,
		"battery_label":      f.Battery.String(),
		"sim_time":           f.SimTime.UTC().Format(time.RFC3339Nano),
		"julian_date":        f.JulianDate,
	})
}

// EncodeBattery renders the battery readout for GetBatteryEstimate.
func EncodeBattery(f sim.Frame) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"mission_time_ticks": f.Snapshot.MissionTimeTicks,
		"suit_battery":       f.Snapshot.SuitBattery,
		"solar_exposure":     f.Snapshot.SolarExposure,
		"infinite":           f.Battery.Infinite,
		"minutes":            f.Battery.Minutes,
		"drain_rate":         f.Battery.DrainRate,
		"label":              f.Battery.String(),
	})
}

// DecodeFrame reverses EncodeFrame. The derived mission_clock and
// battery_label keys are ignored.
func DecodeFrame(s *structpb.Struct) (sim.Frame, error) {
	if s == nil {
		return sim.Frame{}, fmt.Errorf("%w: nil struct", ErrMalformedFrame)
	}
	d := decoder{fields: s.GetFields()}

	var f sim.Frame
	f.Snapshot.MissionTimeTicks = int64(d.number("mission_time_ticks"))
	f.Snapshot.Position = int(d.number("position"))
	f.Snapshot.HazardActive = d.bool("hazard_active")
	f.Snapshot.RadiationLevel = d.number("radiation_level")
	f.Snapshot.HeartRate = d.number("heart_rate")
	f.Snapshot.OxygenLevel = d.number("oxygen_level")
	f.Snapshot.SolarExposure = d.number("solar_exposure")
	f.Snapshot.SuitBattery = d.number("suit_battery")
	f.Snapshot.ExternalTemp = int(d.number("external_temp"))
	f.Snapshot.ShelterDistance = int(d.number("shelter_distance"))
	f.Battery.Infinite = d.bool("battery_infinite")
	f.Battery.Minutes = int64(d.number("battery_minutes"))
	f.Battery.DrainRate = d.number("battery_drain_rate")
	f.JulianDate = d.number("julian_date")

	phase := d.string("phase")
	simTime := d.string("sim_time")
	if d.err != nil {
		return sim.Frame{}, d.err
	}

	p, ok := core.ParsePhase(phase)
	if !ok {
		return sim.Frame{}, fmt.Errorf("%w: unknown phase %q", ErrMalformedFrame, phase)
	}
	f.Snapshot.Phase = p

	at, err := time.Parse(time.RFC3339Nano, simTime)
	if err != nil {
		return sim.Frame{}, fmt.Errorf("%w: sim_time: %v", ErrMalformedFrame, err)
	}
	f.SimTime = at
	return f, nil
}

// decoder keeps the first lookup failure so callers check once.
type decoder struct {
	fields map[string]*structpb.Value
	err    error
}

func (d *decoder) value(key string) *structpb.Value {
	v, ok := d.fields[key]
	if !ok && d.err == nil {
		d.err = fmt.Errorf("%w: missing %q", ErrMalformedFrame, key)
	}
	return v
}

func (d *decoder) number(key string) float64 {
	v := d.value(key)
	if v == nil {
		return 0
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		d.fail(key, "number")
		return 0
	}
	return n.NumberValue
}

func (d *decoder) bool(key string) bool {
	v := d.value(key)
	if v == nil {
		return false
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		d.fail(key, "bool")
		return false
	}
	return b.BoolValue
}

func (d *decoder) string(key string) string {
	v := d.value(key)
	if v == nil {
		return ""
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		d.fail(key, "string")
		return ""
	}
	return s.StringValue
}

func (d *decoder) fail(key, want string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %q is not a %s", ErrMalformedFrame, key, want)
	}
}
