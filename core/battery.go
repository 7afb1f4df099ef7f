package core

import (
	"math"
	"strconv"
)

// BatteryEstimate is the suit battery time remaining shown on the HUD.
type BatteryEstimate struct {
	// Infinite is set whenever the drain rate is not strictly positive.
	// Charging is reported this way too; no time-to-full is computed.
	Infinite  bool
	Minutes   int64
	DrainRate float64 // % per tick; negative while charging
}

func (e BatteryEstimate) String() string {
	if e.Infinite {
		return "∞"
	}
	return strconv.FormatInt(e.Minutes, 10) + "m"
}

// DrainRate returns the battery drain per tick implied by solar exposure.
func DrainRate(solarExposure float64) float64 {
	if solarExposure < DrainingSolarThreshold {
		return DrainRatePerTick
	}
	return ChargeRatePerTick
}

// EstimateBatteryTime derives the time remaining from a snapshot. It never
// mutates anything.
func EstimateBatteryTime(snap Snapshot) BatteryEstimate {
	return EstimateWithRate(snap.SuitBattery, DrainRate(snap.SolarExposure))
}

// EstimateWithRate computes minutes remaining for an explicit drain rate.
// A zero, negative or NaN rate is infinite.
func EstimateWithRate(battery, rate float64) BatteryEstimate {
	if !(rate > 0) {
		return BatteryEstimate{Infinite: true, DrainRate: rate}
	}
	minutes := math.Floor(battery / rate / 60)
	if minutes < 0 || math.IsNaN(minutes) {
		minutes = 0
	}
	return BatteryEstimate{Minutes: int64(minutes), DrainRate: rate}
}
