package core

import "math"

// Step advances s by one tick and returns the new state. It is pure: the
// same input always yields the same output, and s itself is not modified.
//
// The phase is evaluated on the advanced position before wrapping, so the
// tick that carries the route past RouteLength is still a recovery tick.
func Step(s State) (State, error) {
	if err := s.Validate(); err != nil {
		return s, err
	}

	next := s.Position + PositionStep
	out := s
	out.MissionTimeTicks++
	out.Phase = PhaseAt(next)

	switch out.Phase {
	case PhaseFlare:
		out.RadiationLevel = math.Min(s.RadiationLevel+FlareRadiationPerTick, RadiationMax)
		out.HeartRate = math.Min(s.HeartRate+FlareHeartRatePerTick, FlareHeartRateMax)
		out.SolarExposure = math.Max(FlareSolarBase-float64(next-FlareStart)*FlareSolarPerUnit, SolarMin)
		out.SuitBattery = math.Max(s.SuitBattery-FlareBatteryPerTick, BatteryMin)
		out.ShelterDistance = max(s.ShelterDistance-FlareShelterPerTick, ShelterMin)
		out.ExternalTemp = FlareExternalTemp
	case PhaseRecovery:
		out.RadiationLevel = NominalRadiation
		out.HeartRate = NominalHeartRate
		out.SolarExposure = RecoverySolarExposure
		out.SuitBattery = math.Min(s.SuitBattery+RecoveryBatteryPerTick, BatteryMax)
		out.ShelterDistance = ShelterMin
		out.ExternalTemp = NominalExternalTemp
	default:
		p := float64(next)
		out.RadiationLevel = NominalRadiation + RadiationSwing*math.Sin(p/RadiationScale)
		out.HeartRate = NominalHeartRate + HeartRateSwing*math.Sin(p/HeartRateScale)
		out.SolarExposure = NominalSolarExposure
		out.SuitBattery = NominalSuitBattery
		out.ExternalTemp = NominalExternalTemp
		if s.Phase == PhaseRecovery {
			// New patrol cycle: the shelter countdown starts over.
			out.ShelterDistance = NominalShelterDistance
		}
	}
	out.HazardActive = out.Phase == PhaseFlare
	out.OxygenLevel = NominalOxygen
	out.clamp()

	if next > RouteLength {
		next = 0
	}
	out.Position = next
	return out, nil
}

// StepN applies Step n times, stopping at the first error.
func StepN(s State, n int) (State, error) {
	var err error
	for i := 0; i < n; i++ {
		if s, err = Step(s); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (s *State) clamp() {
	s.RadiationLevel = clampFloat(s.RadiationLevel, RadiationMin, RadiationMax)
	s.SuitBattery = clampFloat(s.SuitBattery, BatteryMin, BatteryMax)
	s.SolarExposure = clampFloat(s.SolarExposure, SolarMin, SolarMax)
	s.ShelterDistance = min(max(s.ShelterDistance, ShelterMin), ShelterMax)
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// Validate checks every invariant a stepped state satisfies. Out-of-range
// values are reported, never clamped, because they can only come from a
// caller defect.
func (s State) Validate() error {
	if s.MissionTimeTicks < 0 {
		return invalid("mission_time_ticks", s.MissionTimeTicks, "must be non-negative")
	}
	if s.Position < 0 || s.Position > RouteLength {
		return invalid("position", s.Position, "must be within [0, 200]")
	}
	if s.Phase < PhaseNominal || s.Phase > PhaseRecovery {
		return invalid("phase", int(s.Phase), "unknown phase")
	}
	if !inRange(s.RadiationLevel, RadiationMin, RadiationMax) {
		return invalid("radiation_level", s.RadiationLevel, "must be within [0, 4.5]")
	}
	if !inRange(s.SuitBattery, BatteryMin, BatteryMax) {
		return invalid("suit_battery", s.SuitBattery, "must be within [45, 94]")
	}
	if !inRange(s.SolarExposure, SolarMin, SolarMax) {
		return invalid("solar_exposure", s.SolarExposure, "must be within [5, 100]")
	}
	if s.ShelterDistance < ShelterMin || s.ShelterDistance > ShelterMax {
		return invalid("shelter_distance", s.ShelterDistance, "must be within [0, 200]")
	}
	if math.IsNaN(s.HeartRate) || math.IsInf(s.HeartRate, 0) {
		return invalid("heart_rate", s.HeartRate, "must be finite")
	}
	if s.HazardActive != (s.Phase == PhaseFlare) {
		return invalid("hazard_active", s.HazardActive, "disagrees with phase "+s.Phase.String())
	}
	if s.HazardActive != (s.Position >= FlareStart && s.Position < FlareEnd) {
		return invalid("hazard_active", s.HazardActive, "disagrees with position")
	}
	return nil
}

// inRange is written so NaN fails.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}
