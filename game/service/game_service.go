package service

import (
	"context"
	"time"

	"github.com/wricardo/minimetro/game/engine"
)

// FrameDuration is the fixed frame used by Advance
const FrameDuration = 16 * time.Millisecond

// MaxAdvance bounds a single Advance call
const MaxAdvance = 10 * time.Minute

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, cityID, variant string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Time
	Tick(ctx context.Context, sessionID string, dt time.Duration) (*TickResult, error)
	Advance(ctx context.Context, sessionID string, d time.Duration) (*AdvanceResult, error)
	SetGameSpeed(ctx context.Context, sessionID string, speed int) (*CommandResult, error)
	TogglePause(ctx context.Context, sessionID string) (*CommandResult, error)
	Restart(ctx context.Context, sessionID, cityID string) (*SessionInfo, error)

	// Network editing
	StationAt(ctx context.Context, sessionID string, p engine.Point, touch bool) (*StationHit, error)
	PlaceStation(ctx context.Context, sessionID string, p engine.Point, shape engine.Shape) (*CommandResult, error)
	StartLine(ctx context.Context, sessionID string, station engine.StationID) (*CommandResult, error)
	ExtendLine(ctx context.Context, sessionID string, line engine.LineID, station engine.StationID, atStart bool) (*CommandResult, error)
	TruncateLine(ctx context.Context, sessionID string, line engine.LineID, cutIndex int) (*CommandResult, error)
	ClearLine(ctx context.Context, sessionID string, line engine.LineID) (*CommandResult, error)
	FinishDrawing(ctx context.Context, sessionID string) (*CommandResult, error)

	// Rolling stock and upgrades
	AddTrain(ctx context.Context, sessionID string, line engine.LineID) (*CommandResult, error)
	AddCarriage(ctx context.Context, sessionID string, train engine.TrainID) (*CommandResult, error)
	BuildInterchange(ctx context.Context, sessionID string, station engine.StationID) (*CommandResult, error)
	ChooseUpgrade(ctx context.Context, sessionID string, kind engine.UpgradeKind) (*CommandResult, error)

	// Game State
	GetSnapshot(ctx context.Context, sessionID string) (*engine.Snapshot, error)

	// Cities and scores
	ListCities(ctx context.Context) ([]*CityInfo, error)
	LoadCity(ctx context.Context, cityID string) (*engine.CityConfig, error)
	SaveCity(ctx context.Context, cityID string, city *engine.CityConfig) error
	TopScores(ctx context.Context, cityID, variant string, limit int) ([]ScoreEntry, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, city *engine.CityConfig, variant string) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles city configuration loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.CityConfig, error)
	ListConfigs() ([]*CityInfo, error)
	GetDefault() *engine.CityConfig
	SaveConfig(name string, city *engine.CityConfig) error
}

// ScoreStore keeps finished games
type ScoreStore interface {
	Record(ctx context.Context, entry ScoreEntry) (ScoreEntry, error)
	Top(ctx context.Context, cityID, variant string, limit int) ([]ScoreEntry, error)
}

// Session represents an active game session
type Session struct {
	ID             string
	Engine         *engine.GameEngine
	City           *engine.CityConfig
	Variant        string
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
