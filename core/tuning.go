package core

// Route geometry.
const (
	RouteLength  = 200 // positions wrap to 0 once the advanced value exceeds this
	PositionStep = 2   // route units per tick
	FlareStart   = 100 // inclusive
	FlareEnd     = 150 // exclusive; first recovery position
)

// Nominal readings, also the initial state.
const (
	NominalRadiation       = 0.3
	NominalHeartRate       = 68.0
	NominalOxygen          = 98.0
	NominalSolarExposure   = 87.0
	NominalSuitBattery     = 94.0
	NominalExternalTemp    = -180
	NominalShelterDistance = 200

	RadiationSwing = 0.1  // amplitude of sin(pos/10)
	HeartRateSwing = 3.0  // amplitude of sin(pos/20)
	RadiationScale = 10.0 // divisor applied to position
	HeartRateScale = 20.0
)

// Flare phase rates.
const (
	FlareRadiationPerTick = 0.15
	FlareHeartRatePerTick = 2.0
	FlareHeartRateMax     = 120.0
	FlareBatteryPerTick   = 0.3
	FlareShelterPerTick   = 4
	FlareExternalTemp     = -220
	FlareSolarBase        = 12.0
	FlareSolarPerUnit     = 0.2 // per route unit past FlareStart
)

// Recovery phase rates.
const (
	RecoverySolarExposure  = 94.0
	RecoveryBatteryPerTick = 0.1
)

// Clamp ranges.
const (
	RadiationMin = 0.0
	RadiationMax = 4.5
	BatteryMin   = 45.0
	BatteryMax   = 94.0
	SolarMin     = 5.0
	SolarMax     = 100.0
	ShelterMin   = 0
	ShelterMax   = 200
)

// Battery estimate.
const (
	DrainingSolarThreshold = 20.0 // below this the suit runs on battery
	DrainRatePerTick       = 0.3
	ChargeRatePerTick      = -0.1
)
