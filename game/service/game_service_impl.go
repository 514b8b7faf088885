package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/minimetro/game/engine"
)

var log = logrus.WithField("module", "service")

var (
	// ErrSessionNotFound is wrapped by every call naming an unknown session
	ErrSessionNotFound = errors.New("session not found")
	// ErrCityNotFound is returned when a session asks for an unknown city
	ErrCityNotFound = errors.New("city not found")
	// ErrInvalidCity is returned by SaveCity for a city that fails validation
	ErrInvalidCity = errors.New("invalid city")
	// ErrInvalidDuration is returned by Advance outside (0, MaxAdvance]
	ErrInvalidDuration = errors.New("invalid advance duration")
)

// gameServiceImpl implements the GameService interface. A single lock
// serializes every engine access, so commands and frames never interleave.
// Session fields written through SessionManager.UpdateLastAccessed are only
// written under the write lock and only read under the read lock.
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	scores   ScoreStore
	mu       sync.RWMutex
}

// NewGameService creates a new game service instance. scores may be nil,
// in which case finished games are not recorded.
func NewGameService(sessions SessionManager, configs ConfigManager, scores ScoreStore) GameService {
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		scores:   scores,
	}
}

// CreateSession creates a new game session on a city. Empty values select
// the default city and the desktop variant.
func (s *gameServiceImpl) CreateSession(ctx context.Context, cityID, variant string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	city, err := s.loadCity(cityID)
	if err != nil {
		return nil, err
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", city, variant)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.WithFields(logrus.Fields{"session": sess.ID, "city": city.ID, "variant": sess.Variant}).Info("session created")
	return sessionInfo(sess), nil
}

// GetSession retrieves session information. Reading a session touches it,
// so it takes the write lock like every other LastAccessedAt writer.
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	return sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Map(s.sessions.List(), func(sess *Session, _ int) *SessionInfo {
		return sessionInfo(sess)
	}), nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions.Delete(sessionID)
}

// Tick advances a session by one frame of wall-clock time
func (s *gameServiceImpl) Tick(ctx context.Context, sessionID string, dt time.Duration) (*TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	wasOver := sess.Engine.IsGameOver()
	report := sess.Engine.Tick(dt)
	if report.GameOver && !wasOver {
		s.recordScore(ctx, sess)
	}

	// Frames are frequent; persist only at day boundaries and at the end.
	if report.NewDay || (report.GameOver && !wasOver) {
		if err := s.sessions.Save(sessionID); err != nil {
			log.WithError(err).WithField("session", sessionID).Warn("failed to persist session after tick")
		}
	}

	return &TickResult{
		Report:   report,
		Snapshot: sess.Engine.Snapshot(),
	}, nil
}

// Advance runs fixed 16ms frames until d of wall-clock time is consumed or
// the simulation stops advancing (game over, pending upgrade, pause or speed 0).
func (s *gameServiceImpl) Advance(ctx context.Context, sessionID string, d time.Duration) (*AdvanceResult, error) {
	if d <= 0 || d > MaxAdvance {
		return nil, fmt.Errorf("%w: must be in (0, %s], got %s", ErrInvalidDuration, MaxAdvance, d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	eng := sess.Engine
	wasOver := eng.IsGameOver()
	result := &AdvanceResult{}

	frames := int(d / FrameDuration)
	for i := 1; i <= frames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report := eng.Tick(FrameDuration)
		if !report.Advanced {
			result.StopReasonCode = stopReason(eng.GetState())
			result.StoppedOnFrame = i
			break
		}

		result.Frames++
		result.Simulated += report.Delta
		result.Spawned += report.Spawned
		result.Delivered += report.Delivered
		result.NewStations += len(report.NewStations)
		if report.NewDay {
			result.NewDays++
		}
		if report.NewWeek {
			result.NewWeeks++
		}
		if report.UpgradeOffered {
			result.UpgradeOffered = true
		}
		if report.GameOver {
			result.StopReasonCode = "game_over"
			result.StoppedOnFrame = i
			break
		}
	}

	result.GameOver = eng.IsGameOver()
	if result.GameOver && !wasOver {
		result.RecordedHighscore = s.recordScore(ctx, sess)
	}

	if err := s.sessions.Save(sessionID); err != nil {
		log.WithError(err).WithField("session", sessionID).Warn("failed to persist session after advance")
	}

	result.Snapshot = eng.Snapshot()
	return result, nil
}

// SetGameSpeed changes the simulation multiplier
func (s *gameServiceImpl) SetGameSpeed(ctx context.Context, sessionID string, speed int) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		if err := sess.Engine.SetGameSpeed(speed); err != nil {
			return err
		}
		res.Message = fmt.Sprintf("Game speed set to %dx", speed)
		return nil
	})
}

// TogglePause flips the pause gate
func (s *gameServiceImpl) TogglePause(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		paused, err := sess.Engine.TogglePause()
		if err != nil {
			return err
		}
		res.Paused = &paused
		if paused {
			res.Message = "Game paused"
		} else {
			res.Message = "Game resumed"
		}
		return nil
	})
}

// Restart starts a new game on the session. An empty cityID replays the
// session's current city.
func (s *gameServiceImpl) Restart(ctx context.Context, sessionID, cityID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	var city *engine.CityConfig
	if cityID != "" {
		if city, err = s.loadCity(cityID); err != nil {
			return nil, err
		}
	}
	if err := sess.Engine.Restart(city); err != nil {
		return nil, err
	}
	sess.City = sess.Engine.GetCity()
	s.sessions.UpdateLastAccessed(sessionID)

	if err := s.sessions.Save(sessionID); err != nil {
		log.WithError(err).WithField("session", sessionID).Warn("failed to persist session after restart")
	}
	return sessionInfo(sess), nil
}

// StationAt hit-tests a canvas point
func (s *gameServiceImpl) StationAt(ctx context.Context, sessionID string, p engine.Point, touch bool) (*StationHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	id, found := sess.Engine.StationAt(p, touch)
	return &StationHit{Found: found, Station: id}, nil
}

// PlaceStation adds a station by hand, for sandbox maps and scripted scenarios
func (s *gameServiceImpl) PlaceStation(ctx context.Context, sessionID string, p engine.Point, shape engine.Shape) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		id, err := sess.Engine.PlaceStation(p, shape)
		if err != nil {
			return err
		}
		res.StationID = &id
		res.Message = fmt.Sprintf("Placed %s station %d", shape, id)
		return nil
	})
}

// StartLine begins drawing at a station
func (s *gameServiceImpl) StartLine(ctx context.Context, sessionID string, station engine.StationID) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		id, err := sess.Engine.StartLine(station)
		if err != nil {
			return err
		}
		res.LineID = &id
		res.Message = fmt.Sprintf("Drawing line %d from station %d", id, station)
		return nil
	})
}

// ExtendLine appends or prepends a station to a line
func (s *gameServiceImpl) ExtendLine(ctx context.Context, sessionID string, line engine.LineID, station engine.StationID, atStart bool) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		bridges := sess.Engine.GetState().Resources.Bridges
		if err := sess.Engine.ExtendLine(line, station, atStart); err != nil {
			return err
		}
		res.LineID = &line
		res.StationID = &station
		res.Message = fmt.Sprintf("Station %d added to line %d", station, line)
		if sess.Engine.GetState().Resources.Bridges < bridges {
			res.Message += " (bridge built)"
		}
		return nil
	})
}

// TruncateLine cuts a line at a station index
func (s *gameServiceImpl) TruncateLine(ctx context.Context, sessionID string, line engine.LineID, cutIndex int) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		if err := sess.Engine.TruncateLine(line, cutIndex); err != nil {
			return err
		}
		res.LineID = &line
		res.Message = fmt.Sprintf("Line %d cut at index %d", line, cutIndex)
		return nil
	})
}

// ClearLine removes every station from a line
func (s *gameServiceImpl) ClearLine(ctx context.Context, sessionID string, line engine.LineID) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		if err := sess.Engine.ClearLine(line); err != nil {
			return err
		}
		res.LineID = &line
		res.Message = fmt.Sprintf("Line %d cleared", line)
		return nil
	})
}

// FinishDrawing ends the drawing gesture
func (s *gameServiceImpl) FinishDrawing(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		line := sess.Engine.GetState().Interaction.Line
		if err := sess.Engine.FinishDrawing(); err != nil {
			return err
		}
		res.LineID = &line
		res.Message = "Drawing finished"
		return nil
	})
}

// AddTrain puts a train from the pool on a line
func (s *gameServiceImpl) AddTrain(ctx context.Context, sessionID string, line engine.LineID) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		id, err := sess.Engine.AddTrain(line)
		if err != nil {
			return err
		}
		res.LineID = &line
		res.TrainID = &id
		res.Message = fmt.Sprintf("Train %d added to line %d", id, line)
		return nil
	})
}

// AddCarriage attaches a carriage to a train
func (s *gameServiceImpl) AddCarriage(ctx context.Context, sessionID string, train engine.TrainID) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		if err := sess.Engine.AddCarriage(train); err != nil {
			return err
		}
		res.TrainID = &train
		res.Message = fmt.Sprintf("Carriage attached to train %d", train)
		return nil
	})
}

// BuildInterchange upgrades a station
func (s *gameServiceImpl) BuildInterchange(ctx context.Context, sessionID string, station engine.StationID) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		if err := sess.Engine.BuildInterchange(station); err != nil {
			return err
		}
		res.StationID = &station
		res.Message = fmt.Sprintf("Station %d is now an interchange", station)
		return nil
	})
}

// ChooseUpgrade resolves the weekly upgrade offer
func (s *gameServiceImpl) ChooseUpgrade(ctx context.Context, sessionID string, kind engine.UpgradeKind) (*CommandResult, error) {
	return s.command(sessionID, func(sess *Session, res *CommandResult) error {
		if err := sess.Engine.ChooseUpgrade(kind); err != nil {
			return err
		}
		res.Message = fmt.Sprintf("Upgrade %s taken", kind)
		return nil
	})
}

// GetSnapshot returns a render view of a session
func (s *gameServiceImpl) GetSnapshot(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	snap := sess.Engine.Snapshot()
	return &snap, nil
}

// ListCities returns available city configurations
func (s *gameServiceImpl) ListCities(ctx context.Context) ([]*CityInfo, error) {
	return s.configs.ListConfigs()
}

// LoadCity loads a specific city configuration
func (s *gameServiceImpl) LoadCity(ctx context.Context, cityID string) (*engine.CityConfig, error) {
	return s.configs.LoadConfig(cityID)
}

// SaveCity saves a city configuration to disk
func (s *gameServiceImpl) SaveCity(ctx context.Context, cityID string, city *engine.CityConfig) error {
	if city == nil {
		return fmt.Errorf("%w: city is required", ErrInvalidCity)
	}
	saved := *city
	saved.ID = cityID
	if err := engine.ValidateCityConfig(&saved); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCity, err)
	}
	return s.configs.SaveConfig(cityID, &saved)
}

// TopScores lists the best finished games for a city and variant
func (s *gameServiceImpl) TopScores(ctx context.Context, cityID, variant string, limit int) ([]ScoreEntry, error) {
	if s.scores == nil {
		return []ScoreEntry{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return s.scores.Top(ctx, cityID, variant, limit)
}

// command runs a player command under the write lock and persists the session
// when it succeeds. Engine rejections are returned unwrapped so callers can
// match them with errors.Is.
func (s *gameServiceImpl) command(sessionID string, fn func(sess *Session, res *CommandResult) error) (*CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	res := &CommandResult{}
	if err := fn(sess, res); err != nil {
		return nil, err
	}
	res.Success = true

	if err := s.sessions.Save(sessionID); err != nil {
		log.WithError(err).WithField("session", sessionID).Warn("failed to persist session after command")
	}

	res.Snapshot = sess.Engine.Snapshot()
	return res, nil
}

// recordScore stores a finished game. Failures are logged, never returned:
// the game is over either way.
func (s *gameServiceImpl) recordScore(ctx context.Context, sess *Session) bool {
	state := sess.Engine.GetState()
	fields := logrus.Fields{"session": sess.ID, "city": sess.City.ID, "score": state.Score, "week": state.Week}
	if s.scores == nil {
		log.WithFields(fields).Info("game over")
		return false
	}

	entry, err := s.scores.Record(ctx, ScoreEntry{
		SessionID:    sess.ID,
		CityID:       sess.City.ID,
		Variant:      sess.Variant,
		Score:        state.Score,
		Week:         state.Week,
		Day:          state.Day,
		Stations:     len(state.Stations),
		BridgesBuilt: state.BridgesBuilt,
		Elapsed:      state.Elapsed,
	})
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("failed to record highscore")
		return false
	}
	log.WithFields(fields).WithField("entry", entry.ID).Info("game over, highscore recorded")
	return true
}

// loadCity resolves a city id, falling back to the default city
func (s *gameServiceImpl) loadCity(cityID string) (*engine.CityConfig, error) {
	if cityID == "" {
		return s.configs.GetDefault(), nil
	}

	city, err := s.configs.LoadConfig(cityID)
	if err == nil {
		return city, nil
	}

	// Provide helpful error message with available options
	if infos, listErr := s.configs.ListConfigs(); listErr == nil && len(infos) > 0 {
		ids := lo.Map(infos, func(info *CityInfo, _ int) string { return info.CityID })
		return nil, fmt.Errorf("%w: '%s' (available: %v): %v", ErrCityNotFound, cityID, ids, err)
	}
	return nil, fmt.Errorf("%w: '%s': %v", ErrCityNotFound, cityID, err)
}

// stopReason explains why a frame did not advance
func stopReason(state *engine.GameState) string {
	switch {
	case state.GameOver:
		return "game_over"
	case state.Paused && len(state.PendingUpgrades) > 0:
		return "upgrade_pending"
	case state.Paused:
		return "paused"
	default:
		return "frozen"
	}
}

func sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		CityID:         sess.City.ID,
		CityName:       sess.City.Name,
		Variant:        sess.Variant,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		Snapshot:       sess.Engine.Snapshot(),
	}
}
