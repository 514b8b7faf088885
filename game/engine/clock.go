package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// DayNames label the seven days of a week, starting with day 1
var DayNames = []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// TickReport describes what happened during one Tick
type TickReport struct {
	Advanced       bool        `json:"advanced"`
	Delta          float64     `json:"delta"` // simulated ms after the speed multiplier
	Spawned        int         `json:"spawned"`
	Delivered      int         `json:"delivered"`
	NewDay         bool        `json:"new_day,omitempty"`
	NewWeek        bool        `json:"new_week,omitempty"`
	NewStations    []StationID `json:"new_stations,omitempty"`
	UpgradeOffered bool        `json:"upgrade_offered,omitempty"`
	GameOver       bool        `json:"game_over,omitempty"`
	FailedStation  StationID   `json:"failed_station"`
}

// Tick advances the simulation by one frame. Frames while paused, after game
// over, at speed 0, non-positive or at least MaxFrameDelta long are discarded.
// The frame runs the clock and passenger spawn, then trains, then station
// queues, then failure detection.
func (e *GameEngine) Tick(dt time.Duration) TickReport {
	report := TickReport{FailedStation: e.state.FailedStation}
	s := e.state
	if s.Paused || s.GameOver || dt <= 0 || dt >= e.rules.MaxFrameDelta || s.GameSpeed == 0 {
		report.GameOver = s.GameOver
		return report
	}

	adjusted := float64(dt) / float64(time.Millisecond) * float64(s.GameSpeed)
	delivered := s.Delivered
	report.Advanced = true
	report.Delta = adjusted

	e.advanceClock(adjusted, &report)
	e.tickTrains(adjusted)
	e.tickStations(adjusted)
	if id, failed := e.detectFailure(); failed {
		report.GameOver = true
		report.FailedStation = id
	}

	report.Delivered = s.Delivered - delivered
	return report
}

// advanceClock moves the day forward, rolls days and weeks, and draws the
// passenger spawn for this frame.
func (e *GameEngine) advanceClock(dt float64, report *TickReport) {
	s := e.state
	s.Elapsed += dt
	s.DayProgress += dt

	if s.DayProgress >= e.rules.DayDuration {
		s.DayProgress = 0
		s.Day++
		report.NewDay = true
		report.NewStations = e.spawnStations()

		if s.Day > len(DayNames) {
			s.Day = 1
			s.Week++
			report.NewWeek = true
			report.UpgradeOffered = e.startWeek()
		}
	}
	s.TimeOfDay = e.timeOfDay()

	rate := SpawnRate(e.rules, s.TimeOfDay, s.Week)
	if e.rng.Float64() < rate*dt/1000 {
		if e.spawnPassenger() {
			report.Spawned++
		}
	}
}

// timeOfDay maps day progress onto a 24 hour clock that starts at 06:00
func (e *GameEngine) timeOfDay() float64 {
	return math.Mod(6+e.state.DayProgress/e.rules.DayDuration*24, 24)
}

// startWeek hands out the weekly grants and opens an upgrade offer
func (e *GameEngine) startWeek() bool {
	s := e.state
	bridges := int(math.Floor(e.city.BridgesPerWeek))
	s.Resources.Bridges += bridges
	s.Resources.Trains += e.rules.TrainsPerWeek

	log.WithFields(logrus.Fields{
		"week":    s.Week,
		"bridges": bridges,
		"trains":  e.rules.TrainsPerWeek,
	}).Debug("new week")

	return e.offerUpgrades()
}

// SpawnRate returns passengers per second for a time of day and week. The
// base grows with the week; rush hours raise it and night lowers it.
func SpawnRate(r Rules, timeOfDay float64, week int) float64 {
	base := math.Min(r.BaseSpawnRate+r.WeeklySpawnGrowth*float64(week), r.MaxBaseSpawnRate)

	hour := math.Floor(timeOfDay)
	multiplier := 1.0
	switch {
	case (hour >= 7 && hour < 9) || (hour >= 17 && hour < 19):
		multiplier = r.RushHourMultiplier
	case hour < 6 || hour >= 22:
		multiplier = r.NightMultiplier
	}
	return math.Min(base*multiplier, r.MaxSpawnRate)
}

// ClockString formats the time of day as HH:MM
func ClockString(timeOfDay float64) string {
	hours := int(timeOfDay)
	minutes := int((timeOfDay - float64(hours)) * 60)
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}

// DayName returns the label of a day number, 1-based
func DayName(day int) string {
	if day < 1 {
		day = 1
	}
	return DayNames[(day-1)%len(DayNames)]
}
