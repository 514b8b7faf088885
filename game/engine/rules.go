package engine

import (
	"fmt"
	"sort"
	"time"
)

// Validation limits for rules
const (
	MinWaterSamples = 10
	MaxLinesLimit   = 6
)

// Variant names accepted by RulesForVariant
const (
	VariantDesktop = "desktop"
	VariantMobile  = "mobile"
	VariantClassic = "classic"
)

// Rules holds every tunable of the simulation. The variants that used to be
// separate game engines are presets of this one struct.
type Rules struct {
	Name string `json:"name"`

	CanvasWidth  float64 `json:"canvas_width"`
	CanvasHeight float64 `json:"canvas_height"`

	// Stations
	StationCount       int     `json:"station_count"`
	MinStationDistance float64 `json:"min_station_distance"`
	PlacementAttempts  int     `json:"placement_attempts"`
	StationCapacity    int     `json:"station_capacity"`
	MaxOvercrowding    float64 `json:"max_overcrowding"` // ms
	StationsPerDay     int     `json:"stations_per_day"`
	MaxStations        int     `json:"max_stations"`
	HitRadius          float64 `json:"hit_radius"`
	TouchHitRadius     float64 `json:"touch_hit_radius"`

	// Network
	InitialLines     int  `json:"initial_lines"`
	MaxLines         int  `json:"max_lines"`
	BridgesRequired  bool `json:"bridges_required"`
	WaterSamples     int  `json:"water_samples"`
	InterchangeBonus int  `json:"interchange_bonus"`

	// Trains
	InitialTrains       int     `json:"initial_trains"`
	InitialCarriages    int     `json:"initial_carriages"`
	InitialInterchanges int     `json:"initial_interchanges"`
	TrainSpeed          float64 `json:"train_speed"` // px per ms
	TrainCapacity       int     `json:"train_capacity"`
	CarriageCapacity    int     `json:"carriage_capacity"`
	DwellRegular        float64 `json:"dwell_regular"`     // ms
	DwellInterchange    float64 `json:"dwell_interchange"` // ms

	// Clock
	DayDuration   float64       `json:"day_duration"` // ms
	MaxFrameDelta time.Duration `json:"max_frame_delta"`
	TrainsPerWeek int           `json:"trains_per_week"`
	UpgradeOffers int           `json:"upgrade_offers"`

	// Passenger spawn curve
	BaseSpawnRate      float64 `json:"base_spawn_rate"` // passengers per second
	WeeklySpawnGrowth  float64 `json:"weekly_spawn_growth"`
	MaxBaseSpawnRate   float64 `json:"max_base_spawn_rate"`
	RushHourMultiplier float64 `json:"rush_hour_multiplier"`
	NightMultiplier    float64 `json:"night_multiplier"`
	MaxSpawnRate       float64 `json:"max_spawn_rate"`
}

// DesktopRules are the defaults of the full game
func DesktopRules() Rules {
	return Rules{
		Name:                VariantDesktop,
		CanvasWidth:         1000,
		CanvasHeight:        1000,
		StationCount:        6,
		MinStationDistance:  150,
		PlacementAttempts:   100,
		StationCapacity:     6,
		MaxOvercrowding:     8000,
		StationsPerDay:      1,
		MaxStations:         30,
		HitRadius:           24,
		TouchHitRadius:      49,
		InitialLines:        3,
		MaxLines:            MaxLinesLimit,
		BridgesRequired:     true,
		WaterSamples:        20,
		InterchangeBonus:    6,
		InitialTrains:       3,
		InitialCarriages:    0,
		InitialInterchanges: 0,
		TrainSpeed:          0.5,
		TrainCapacity:       6,
		CarriageCapacity:    4,
		DwellRegular:        700,
		DwellInterchange:    400,
		DayDuration:         20000,
		MaxFrameDelta:       100 * time.Millisecond,
		TrainsPerWeek:       1,
		UpgradeOffers:       2,
		BaseSpawnRate:       0.3,
		WeeklySpawnGrowth:   0.1,
		MaxBaseSpawnRate:    1.2,
		RushHourMultiplier:  1.5,
		NightMultiplier:     0.5,
		MaxSpawnRate:        2.0,
	}
}

// MobileRules start with fewer, more spread out and smaller stations
func MobileRules() Rules {
	r := DesktopRules()
	r.Name = VariantMobile
	r.StationCount = 3
	r.MinStationDistance = 200
	r.HitRadius = 16
	r.TouchHitRadius = 41
	return r
}

// ClassicRules play without bridge costs, like the first version of the game
func ClassicRules() Rules {
	r := DesktopRules()
	r.Name = VariantClassic
	r.BridgesRequired = false
	r.RushHourMultiplier = 2.0
	return r
}

var variants = map[string]func() Rules{
	VariantDesktop: DesktopRules,
	VariantMobile:  MobileRules,
	VariantClassic: ClassicRules,
}

// RulesForVariant returns the preset for a variant name. An empty name selects desktop.
func RulesForVariant(name string) (Rules, error) {
	if name == "" {
		name = VariantDesktop
	}
	preset, ok := variants[name]
	if !ok {
		return Rules{}, fmt.Errorf("%w %q (available: %v)", ErrUnknownVariant, name, Variants())
	}
	return preset(), nil
}

// Variants lists the known variant names
func Variants() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateRules checks that a rule set can drive a simulation
func ValidateRules(r Rules) error {
	if r.CanvasWidth <= 0 || r.CanvasHeight <= 0 {
		return fmt.Errorf("rules validation: canvas must be positive, got %vx%v", r.CanvasWidth, r.CanvasHeight)
	}
	if r.StationCount < 0 || r.PlacementAttempts <= 0 {
		return fmt.Errorf("rules validation: station_count must be >= 0 and placement_attempts > 0")
	}
	if r.StationCapacity <= 0 {
		return fmt.Errorf("rules validation: station_capacity must be positive, got %d", r.StationCapacity)
	}
	if r.MaxOvercrowding <= 0 {
		return fmt.Errorf("rules validation: max_overcrowding must be positive")
	}
	if r.InitialLines < 0 || r.MaxLines < r.InitialLines || r.MaxLines > MaxLinesLimit {
		return fmt.Errorf("rules validation: lines must satisfy 0 <= initial_lines <= max_lines <= %d", MaxLinesLimit)
	}
	if r.WaterSamples < MinWaterSamples {
		return fmt.Errorf("rules validation: water_samples must be at least %d, got %d", MinWaterSamples, r.WaterSamples)
	}
	if r.TrainSpeed <= 0 || r.TrainCapacity <= 0 || r.CarriageCapacity < 0 {
		return fmt.Errorf("rules validation: train speed and capacity must be positive")
	}
	if r.DwellRegular < 0 || r.DwellInterchange < 0 {
		return fmt.Errorf("rules validation: dwell times must not be negative")
	}
	if r.DayDuration <= 0 {
		return fmt.Errorf("rules validation: day_duration must be positive")
	}
	if r.MaxFrameDelta <= 0 {
		return fmt.Errorf("rules validation: max_frame_delta must be positive")
	}
	if r.UpgradeOffers < 0 || r.UpgradeOffers > len(AllUpgrades) {
		return fmt.Errorf("rules validation: upgrade_offers must be between 0 and %d", len(AllUpgrades))
	}
	if r.MaxSpawnRate <= 0 || r.BaseSpawnRate < 0 {
		return fmt.Errorf("rules validation: spawn rates must be positive")
	}
	return nil
}
