package service

import (
	"time"

	"github.com/wricardo/minimetro/game/engine"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string          `json:"id"`
	CityID         string          `json:"city_id"`
	CityName       string          `json:"city_name"`
	Variant        string          `json:"variant"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	Snapshot       engine.Snapshot `json:"snapshot"`
}

// TickResult is the outcome of a single frame
type TickResult struct {
	Report   engine.TickReport `json:"report"`
	Snapshot engine.Snapshot   `json:"snapshot"`
}

// AdvanceResult summarizes a run of fixed frames
type AdvanceResult struct {
	Frames            int             `json:"frames"`
	Simulated         float64         `json:"simulated"` // ms of game time
	Spawned           int             `json:"spawned"`
	Delivered         int             `json:"delivered"`
	NewDays           int             `json:"new_days"`
	NewWeeks          int             `json:"new_weeks"`
	NewStations       int             `json:"new_stations"`
	UpgradeOffered    bool            `json:"upgrade_offered"`
	GameOver          bool            `json:"game_over"`
	RecordedHighscore bool            `json:"recorded_highscore,omitempty"`
	StopReasonCode    string          `json:"stop_reason_code,omitempty"` // game_over|upgrade_pending|paused|frozen
	StoppedOnFrame    int             `json:"stopped_on_frame,omitempty"`
	Snapshot          engine.Snapshot `json:"snapshot"`
}

// CommandResult is returned by every player command
type CommandResult struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message,omitempty"`
	LineID    *engine.LineID    `json:"line_id,omitempty"`
	TrainID   *engine.TrainID   `json:"train_id,omitempty"`
	StationID *engine.StationID `json:"station_id,omitempty"`
	Paused    *bool             `json:"paused,omitempty"`
	Snapshot  engine.Snapshot   `json:"snapshot"`
}

// StationHit is the result of a hit test
type StationHit struct {
	Found   bool             `json:"found"`
	Station engine.StationID `json:"station"`
}

// CityInfo provides information about a city configuration
type CityInfo struct {
	Filename       string  `json:"filename"`
	CityID         string  `json:"city_id"` // The identifier to use for session creation
	Name           string  `json:"name"`
	Subtitle       string  `json:"subtitle,omitempty"`
	Rivers         int     `json:"rivers"`
	InitialBridges int     `json:"initial_bridges"`
	BridgesPerWeek float64 `json:"bridges_per_week"`
}

// ScoreEntry is one finished game in the highscore table
type ScoreEntry struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	CityID       string    `json:"city_id"`
	Variant      string    `json:"variant"`
	Score        int       `json:"score"`
	Week         int       `json:"week"`
	Day          int       `json:"day"`
	Stations     int       `json:"stations"`
	BridgesBuilt int       `json:"bridges_built"`
	Elapsed      float64   `json:"elapsed"`
	RecordedAt   time.Time `json:"recorded_at"`
}
