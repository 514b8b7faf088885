package engine

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "engine")

// Engine provides the main interface for simulation commands and queries
type Engine interface {
	// State management
	GetState() *GameState
	SetState(state *GameState) error
	Snapshot() Snapshot
	IsGameOver() bool
	GetScore() int
	GetCity() *CityConfig
	GetRules() Rules
	Restart(city *CityConfig) error

	// Stations
	StationAt(p Point, touch bool) (StationID, bool)
	PlaceStation(p Point, shape Shape) (StationID, error)

	// Lines
	StartLine(station StationID) (LineID, error)
	ExtendLine(line LineID, station StationID, atStart bool) error
	TruncateLine(line LineID, cutIndex int) error
	ClearLine(line LineID) error
	FinishDrawing() error

	// Rolling stock and upgrades
	AddTrain(line LineID) (TrainID, error)
	AddCarriage(train TrainID) error
	BuildInterchange(station StationID) error
	ChooseUpgrade(kind UpgradeKind) error

	// Time
	Tick(dt time.Duration) TickReport
	SetGameSpeed(speed int) error
	TogglePause() (bool, error)
}

// GameEngine implements Engine. It is not safe for concurrent use; callers
// serialize access the way the game service does.
type GameEngine struct {
	state *GameState
	city  *CityConfig
	rules Rules
	rng   *rand.Rand
}

var _ Engine = (*GameEngine)(nil)

// Option customizes a GameEngine at construction
type Option func(*GameEngine)

// WithSeed makes every random draw of the engine reproducible
func WithSeed(seed uint64) Option {
	return func(e *GameEngine) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithEmptyMap skips initial station generation. Used for hand-built scenarios.
func WithEmptyMap() Option {
	return func(e *GameEngine) {
		e.rules.StationCount = 0
	}
}

// NewEngine creates an engine for a city and starts a fresh game
func NewEngine(city *CityConfig, rules Rules, opts ...Option) (*GameEngine, error) {
	if city == nil {
		city = DefaultCity()
	}
	if err := ValidateCityConfig(city); err != nil {
		return nil, err
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	e := &GameEngine{
		city:  city,
		rules: rules,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		seed := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}

	e.state = e.newGameState()
	return e, nil
}

// newGameState builds the state of a new game: initial lines, resources and stations
func (e *GameEngine) newGameState() *GameState {
	s := &GameState{
		CityID:        e.city.ID,
		Variant:       e.rules.Name,
		Stations:      []Station{},
		Lines:         []Line{},
		Trains:        []Train{},
		Week:          1,
		Day:           1,
		TimeOfDay:     6,
		GameSpeed:     1,
		FailedStation: NoStation,
		Resources: Resources{
			Trains:       e.rules.InitialTrains,
			Carriages:    e.rules.InitialCarriages,
			Bridges:      e.city.InitialBridges,
			Interchanges: e.rules.InitialInterchanges,
		},
		Interaction: Interaction{Mode: InteractionIdle},
	}
	e.state = s

	for i := 0; i < e.rules.InitialLines; i++ {
		e.addLine()
	}
	e.generateInitialStations()
	return s
}

// GetState returns the live game state
func (e *GameEngine) GetState() *GameState {
	return e.state
}

// SetState replaces the game state (used for persistence loading)
func (e *GameEngine) SetState(state *GameState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	for i, line := range state.Lines {
		if len(line.Stations) > 0 && len(line.Segments) != len(line.Stations)-1 {
			return fmt.Errorf("line %d has %d segments for %d stations", i, len(line.Segments), len(line.Stations))
		}
		for _, id := range line.Stations {
			if int(id) < 0 || int(id) >= len(state.Stations) {
				return fmt.Errorf("line %d references %w %d", i, ErrUnknownStation, id)
			}
		}
	}
	for _, t := range state.Trains {
		if int(t.Line) < 0 || int(t.Line) >= len(state.Lines) {
			return fmt.Errorf("train %d references %w %d", t.ID, ErrUnknownLine, t.Line)
		}
	}
	e.state = state
	return nil
}

// IsGameOver reports whether a station has overflowed
func (e *GameEngine) IsGameOver() bool {
	return e.state.GameOver
}

// GetScore returns the number of delivered passengers
func (e *GameEngine) GetScore() int {
	return e.state.Score
}

// GetCity returns the city the game is played on
func (e *GameEngine) GetCity() *CityConfig {
	return e.city
}

// GetRules returns the active rule set
func (e *GameEngine) GetRules() Rules {
	return e.rules
}

// Restart starts a new game, optionally on another city. A nil city replays the current one.
func (e *GameEngine) Restart(city *CityConfig) error {
	if city != nil {
		if err := ValidateCityConfig(city); err != nil {
			return err
		}
		e.city = city
	}
	e.state = e.newGameState()
	log.WithField("city", e.city.ID).Debug("game restarted")
	return nil
}

// SetGameSpeed sets the simulation multiplier. 0 freezes the simulation without pausing.
func (e *GameEngine) SetGameSpeed(speed int) error {
	if e.state.GameOver {
		return ErrGameOver
	}
	if speed < 0 || speed > 2 {
		return ErrInvalidSpeed
	}
	e.state.GameSpeed = speed
	return nil
}

// TogglePause flips the pause gate and returns the new value. A pending
// upgrade offer keeps the game paused until it is resolved.
func (e *GameEngine) TogglePause() (bool, error) {
	if e.state.GameOver {
		return e.state.Paused, ErrGameOver
	}
	if e.state.Paused && len(e.state.PendingUpgrades) > 0 {
		return true, ErrUpgradePending
	}
	e.state.Paused = !e.state.Paused
	return e.state.Paused, nil
}

func (e *GameEngine) station(id StationID) (*Station, error) {
	if id < 0 || int(id) >= len(e.state.Stations) {
		return nil, ErrUnknownStation
	}
	return &e.state.Stations[id], nil
}

func (e *GameEngine) line(id LineID) (*Line, error) {
	if id < 0 || int(id) >= len(e.state.Lines) {
		return nil, ErrUnknownLine
	}
	return &e.state.Lines[id], nil
}

func (e *GameEngine) train(id TrainID) (*Train, error) {
	for i := range e.state.Trains {
		if e.state.Trains[i].ID == id {
			return &e.state.Trains[i], nil
		}
	}
	return nil, ErrUnknownTrain
}
