package core

import "strings"

// Phase is the section of the patrol route the last step landed in.
type Phase int

const (
	// PhaseNominal is ordinary cruising with sinusoidal readings.
	PhaseNominal Phase = iota
	// PhaseFlare is the solar-flare hazard interval, [FlareStart, FlareEnd).
	PhaseFlare
	// PhaseRecovery follows the flare until the route wraps.
	PhaseRecovery
)

func (p Phase) String() string {
	switch p {
	case PhaseNominal:
		return "nominal"
	case PhaseFlare:
		return "flare"
	case PhaseRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// ParsePhase is the inverse of Phase.String. Unknown names report ok=false.
func ParsePhase(s string) (Phase, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nominal":
		return PhaseNominal, true
	case "flare":
		return PhaseFlare, true
	case "recovery":
		return PhaseRecovery, true
	default:
		return PhaseNominal, false
	}
}

// PhaseAt classifies an advanced route position.
func PhaseAt(pos int) Phase {
	switch {
	case pos >= FlareEnd:
		return PhaseRecovery
	case pos >= FlareStart:
		return PhaseFlare
	default:
		return PhaseNominal
	}
}

// State is the complete simulation state. It is a plain value: Step takes
// one and returns the next, so no state is shared between callers.
type State struct {
	MissionTimeTicks int64
	Position         int
	Phase            Phase

	RadiationLevel  float64 // mSv/h
	HeartRate       float64 // BPM
	OxygenLevel     float64 // %
	SolarExposure   float64 // %
	SuitBattery     float64 // %
	ExternalTemp    int     // °C
	ShelterDistance int     // m
	HazardActive    bool
}

// InitialState returns the state a simulator starts from.
func InitialState() State {
	return State{
		Phase:           PhaseNominal,
		RadiationLevel:  NominalRadiation,
		HeartRate:       NominalHeartRate,
		OxygenLevel:     NominalOxygen,
		SolarExposure:   NominalSolarExposure,
		SuitBattery:     NominalSuitBattery,
		ExternalTemp:    NominalExternalTemp,
		ShelterDistance: NominalShelterDistance,
	}
}

// Snapshot is a read-only copy of the readings at one tick.
type Snapshot struct {
	MissionTimeTicks int64
	Position         int
	Phase            Phase
	HazardActive     bool

	RadiationLevel  float64
	HeartRate       float64
	OxygenLevel     float64
	SolarExposure   float64
	SuitBattery     float64
	ExternalTemp    int
	ShelterDistance int
}

// Snapshot copies the readings out of s.
func (s State) Snapshot() Snapshot {
	return Snapshot{
		MissionTimeTicks: s.MissionTimeTicks,
		Position:         s.Position,
		Phase:            s.Phase,
		HazardActive:     s.HazardActive,
		RadiationLevel:   s.RadiationLevel,
		HeartRate:        s.HeartRate,
		OxygenLevel:      s.OxygenLevel,
		SolarExposure:    s.SolarExposure,
		SuitBattery:      s.SuitBattery,
		ExternalTemp:     s.ExternalTemp,
		ShelterDistance:  s.ShelterDistance,
	}
}

// Readings returns s with mission time zeroed so snapshots from different
// patrol cycles can be compared directly.
func (s Snapshot) Readings() Snapshot {
	s.MissionTimeTicks = 0
	return s
}
