package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/minimetro/game/engine"
	"github.com/wricardo/minimetro/game/service"
)

var errMockNotFound = service.ErrSessionNotFound

// MockSessionManager implements service.SessionManager for testing.
// Engines start with an empty map so tests place their own stations.
type MockSessionManager struct {
	sessions map[string]*service.Session
	saves    int
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*service.Session),
	}
}

func (m *MockSessionManager) Create(id string, city *engine.CityConfig, variant string) (*service.Session, error) {
	// Generate ID if empty (mimics real session manager behavior)
	if id == "" {
		id = fmt.Sprintf("test_%d", len(m.sessions)+1)
	}

	rules, err := engine.RulesForVariant(variant)
	if err != nil {
		return nil, err
	}
	eng, err := engine.NewEngine(city, rules, engine.WithSeed(1), engine.WithEmptyMap())
	if err != nil {
		return nil, err
	}

	session := &service.Session{
		ID:             id,
		Engine:         eng,
		City:           city,
		Variant:        rules.Name,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
	m.sessions[id] = session
	return session, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	session, exists := m.sessions[id]
	if !exists {
		return nil, errMockNotFound
	}
	return session, nil
}

func (m *MockSessionManager) List() []*service.Session {
	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *MockSessionManager) Delete(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return errMockNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	if session, exists := m.sessions[id]; exists {
		session.LastAccessedAt = time.Now()
		return nil
	}
	return errMockNotFound
}

func (m *MockSessionManager) Save(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return errMockNotFound
	}
	m.saves++
	return nil
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	cities map[string]*engine.CityConfig
}

func NewMockConfigManager() *MockConfigManager {
	river := &engine.CityConfig{
		ID:   "rivertown",
		Name: "RIVERTOWN",
		Rivers: []engine.River{{
			Name:   "Main",
			Width:  80,
			Points: []engine.Point{{X: 0, Y: 0.5}, {X: 1, Y: 0.5}},
		}},
		SpawnZones:     []engine.SpawnZone{{Name: "North", X: 0.1, Y: 0.1, W: 0.8, H: 0.2}},
		InitialBridges: 0,
		BridgesPerWeek: 1,
	}
	return &MockConfigManager{
		cities: map[string]*engine.CityConfig{
			"custom":    engine.DefaultCity(),
			"rivertown": river,
		},
	}
}

func (m *MockConfigManager) LoadConfig(name string) (*engine.CityConfig, error) {
	city, exists := m.cities[name]
	if !exists {
		return nil, errors.New("configuration not found")
	}
	return city, nil
}

func (m *MockConfigManager) ListConfigs() ([]*service.CityInfo, error) {
	var result []*service.CityInfo
	for id, city := range m.cities {
		result = append(result, &service.CityInfo{
			Filename: id + ".json",
			CityID:   id,
			Name:     city.Name,
		})
	}
	return result, nil
}

func (m *MockConfigManager) GetDefault() *engine.CityConfig {
	return m.cities["custom"]
}

func (m *MockConfigManager) SaveConfig(name string, city *engine.CityConfig) error {
	m.cities[name] = city
	return nil
}

// MockScoreStore implements service.ScoreStore in memory
type MockScoreStore struct {
	mu      sync.Mutex
	entries []service.ScoreEntry
}

func (m *MockScoreStore) Record(ctx context.Context, entry service.ScoreEntry) (service.ScoreEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = fmt.Sprintf("score_%d", len(m.entries)+1)
	entry.RecordedAt = time.Now()
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *MockScoreStore) Top(ctx context.Context, cityID, variant string, limit int) ([]service.ScoreEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []service.ScoreEntry
	for _, e := range m.entries {
		if e.CityID == cityID && e.Variant == variant {
			result = append(result, e)
		}
	}
	return result, nil
}

func newTestService(t *testing.T) (service.GameService, *MockSessionManager, *MockScoreStore) {
	t.Helper()
	sessions := NewMockSessionManager()
	scores := &MockScoreStore{}
	return service.NewGameService(sessions, NewMockConfigManager(), scores), sessions, scores
}

// placeStations puts stations on the default city and returns the session id
func placeStations(t *testing.T, svc service.GameService, points ...engine.Point) string {
	t.Helper()
	ctx := context.Background()
	info, err := svc.CreateSession(ctx, "", "")
	require.NoError(t, err)
	shapes := []engine.Shape{engine.Circle, engine.Triangle, engine.Square}
	for i, p := range points {
		_, err := svc.PlaceStation(ctx, info.ID, p, shapes[i%len(shapes)])
		require.NoError(t, err)
	}
	return info.ID
}

func TestGameService_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("default city and variant", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		info, err := svc.CreateSession(ctx, "", "")
		require.NoError(t, err)
		assert.NotEmpty(t, info.ID)
		assert.Equal(t, "custom", info.CityID)
		assert.Equal(t, engine.VariantDesktop, info.Variant)
		assert.Equal(t, 1, info.Snapshot.Week)
		assert.Len(t, info.Snapshot.Lines, 3)
	})

	t.Run("named city and variant", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		info, err := svc.CreateSession(ctx, "rivertown", engine.VariantClassic)
		require.NoError(t, err)
		assert.Equal(t, "rivertown", info.CityID)
		assert.Equal(t, "RIVERTOWN", info.CityName)
		assert.Equal(t, engine.VariantClassic, info.Variant)
	})

	t.Run("unknown city", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.CreateSession(ctx, "atlantis", "")
		assert.ErrorIs(t, err, service.ErrCityNotFound)
		assert.Contains(t, err.Error(), "rivertown")
	})

	t.Run("unknown variant", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.CreateSession(ctx, "", "arcade")
		assert.ErrorIs(t, err, engine.ErrUnknownVariant)
	})
}

func TestGameService_Sessions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	a, err := svc.CreateSession(ctx, "", "")
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, "rivertown", "")
	require.NoError(t, err)

	list, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	got, err := svc.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	require.NoError(t, svc.DeleteSession(ctx, a.ID))
	_, err = svc.GetSession(ctx, a.ID)
	assert.ErrorIs(t, err, errMockNotFound)
	assert.Error(t, svc.DeleteSession(ctx, a.ID))
}

func TestGameService_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	info, err := svc.CreateSession(ctx, "", "")
	require.NoError(t, err)

	// Touching and listing sessions from many goroutines must not race on LastAccessedAt
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				got, err := svc.GetSession(ctx, info.ID)
				assert.NoError(t, err)
				assert.False(t, got.LastAccessedAt.Before(info.CreatedAt))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				list, err := svc.ListSessions(ctx)
				assert.NoError(t, err)
				assert.Len(t, list, 1)
			}
		}()
	}
	wg.Wait()
}

func TestGameService_Commands(t *testing.T) {
	ctx := context.Background()

	t.Run("drawing a line adds a train", func(t *testing.T) {
		svc, sessions, _ := newTestService(t)
		id := placeStations(t, svc, engine.Point{X: 100, Y: 100}, engine.Point{X: 500, Y: 100})

		res, err := svc.StartLine(ctx, id, 0)
		require.NoError(t, err)
		require.NotNil(t, res.LineID)
		assert.Equal(t, engine.LineID(0), *res.LineID)
		assert.Equal(t, engine.InteractionDrawing, res.Snapshot.Interaction.Mode)

		res, err = svc.ExtendLine(ctx, id, 0, 1, false)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Len(t, res.Snapshot.Trains, 1)
		assert.Equal(t, []engine.StationID{0, 1}, res.Snapshot.Lines[0].Stations)

		res, err = svc.FinishDrawing(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, engine.InteractionIdle, res.Snapshot.Interaction.Mode)
		assert.Greater(t, sessions.saves, 0)
	})

	t.Run("rejections pass engine errors through", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id := placeStations(t, svc, engine.Point{X: 100, Y: 100})

		_, err := svc.AddTrain(ctx, id, 0)
		assert.ErrorIs(t, err, engine.ErrLineTooShort)
		_, err = svc.ExtendLine(ctx, id, 9, 0, false)
		assert.ErrorIs(t, err, engine.ErrUnknownLine)
		_, err = svc.AddCarriage(ctx, id, 3)
		assert.ErrorIs(t, err, engine.ErrUnknownTrain)
		_, err = svc.BuildInterchange(ctx, id, 0)
		assert.ErrorIs(t, err, engine.ErrNoInterchanges)
		_, err = svc.ChooseUpgrade(ctx, id, engine.UpgradeTrain)
		assert.ErrorIs(t, err, engine.ErrNoUpgradePending)
		_, err = svc.SetGameSpeed(ctx, id, 5)
		assert.ErrorIs(t, err, engine.ErrInvalidSpeed)
		_, err = svc.FinishDrawing(ctx, id)
		assert.ErrorIs(t, err, engine.ErrNotDrawing)
	})

	t.Run("dry city spends no bridge", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id := placeStations(t, svc, engine.Point{X: 500, Y: 100}, engine.Point{X: 500, Y: 900})

		_, err := svc.ExtendLine(ctx, id, 0, 0, false)
		require.NoError(t, err)
		res, err := svc.ExtendLine(ctx, id, 0, 1, false)
		require.NoError(t, err)
		assert.NotContains(t, res.Message, "bridge")
		assert.Equal(t, 3, res.Snapshot.Resources.Bridges)
	})

	t.Run("pause and speed", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id := placeStations(t, svc)

		res, err := svc.TogglePause(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, res.Paused)
		assert.True(t, *res.Paused)
		assert.True(t, res.Snapshot.Paused)

		res, err = svc.TogglePause(ctx, id)
		require.NoError(t, err)
		assert.False(t, *res.Paused)

		res, err = svc.SetGameSpeed(ctx, id, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Snapshot.GameSpeed)
	})

	t.Run("station hit test", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id := placeStations(t, svc, engine.Point{X: 100, Y: 100})

		hit, err := svc.StationAt(ctx, id, engine.Point{X: 110, Y: 100}, false)
		require.NoError(t, err)
		assert.True(t, hit.Found)
		assert.Equal(t, engine.StationID(0), hit.Station)

		hit, err = svc.StationAt(ctx, id, engine.Point{X: 140, Y: 100}, false)
		require.NoError(t, err)
		assert.False(t, hit.Found)
		hit, err = svc.StationAt(ctx, id, engine.Point{X: 140, Y: 100}, true)
		require.NoError(t, err)
		assert.True(t, hit.Found)
	})

	t.Run("missing session", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.StartLine(ctx, "nope", 0)
		assert.ErrorIs(t, err, errMockNotFound)
		_, err = svc.GetSnapshot(ctx, "nope")
		assert.ErrorIs(t, err, errMockNotFound)
	})
}

func TestGameService_Advance(t *testing.T) {
	ctx := context.Background()

	t.Run("runs fixed frames", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id := placeStations(t, svc, engine.Point{X: 100, Y: 100})

		res, err := svc.Advance(ctx, id, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 62, res.Frames)
		assert.InDelta(t, 992, res.Simulated, 1e-9)
		assert.Empty(t, res.StopReasonCode)
		assert.InDelta(t, 992, res.Snapshot.Elapsed, 1e-9)
	})

	t.Run("rejects bad durations", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id := placeStations(t, svc)
		_, err := svc.Advance(ctx, id, 0)
		assert.ErrorIs(t, err, service.ErrInvalidDuration)
		_, err = svc.Advance(ctx, id, service.MaxAdvance+time.Second)
		assert.ErrorIs(t, err, service.ErrInvalidDuration)
	})

	t.Run("stops on a pending upgrade", func(t *testing.T) {
		svc, sessions, _ := newTestService(t)
		id := placeStations(t, svc)
		state := sessions.sessions[id].Engine.GetState()
		state.Paused = true
		state.PendingUpgrades = []engine.UpgradeKind{engine.UpgradeTrain}

		res, err := svc.Advance(ctx, id, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Frames)
		assert.Equal(t, "upgrade_pending", res.StopReasonCode)
		assert.Equal(t, 1, res.StoppedOnFrame)
	})

	t.Run("speed zero freezes", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id := placeStations(t, svc)
		_, err := svc.SetGameSpeed(ctx, id, 0)
		require.NoError(t, err)

		res, err := svc.Advance(ctx, id, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "frozen", res.StopReasonCode)
	})
}

func TestGameService_GameOverRecordsOnce(t *testing.T) {
	ctx := context.Background()
	svc, sessions, scores := newTestService(t)
	id := placeStations(t, svc, engine.Point{X: 100, Y: 100})

	st := &sessions.sessions[id].Engine.GetState().Stations[0]
	for i := 0; i < 7; i++ {
		st.Queue = append(st.Queue, engine.Passenger{ID: i, TargetShape: engine.Square})
	}

	// 8000ms of overcrowding is exactly 500 frames
	res, err := svc.Advance(ctx, id, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, res.GameOver)
	assert.Equal(t, "game_over", res.StopReasonCode)
	assert.Equal(t, 500, res.StoppedOnFrame)
	assert.True(t, res.RecordedHighscore)
	require.Len(t, scores.entries, 1)
	assert.Equal(t, id, scores.entries[0].SessionID)
	assert.Equal(t, "custom", scores.entries[0].CityID)
	assert.Equal(t, engine.VariantDesktop, scores.entries[0].Variant)

	res, err = svc.Advance(ctx, id, time.Second)
	require.NoError(t, err)
	assert.False(t, res.RecordedHighscore)
	tick, err := svc.Tick(ctx, id, 16*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, tick.Report.GameOver)
	assert.Len(t, scores.entries, 1)

	top, err := svc.TopScores(ctx, "custom", engine.VariantDesktop, 5)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	_, err = svc.ExtendLine(ctx, id, 0, 0, false)
	assert.ErrorIs(t, err, engine.ErrGameOver)

	info, err := svc.Restart(ctx, id, "")
	require.NoError(t, err)
	assert.False(t, info.Snapshot.GameOver)
	assert.Equal(t, 0, info.Snapshot.Score)
}

func TestGameService_Restart(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	id := placeStations(t, svc, engine.Point{X: 100, Y: 100})

	info, err := svc.Restart(ctx, id, "rivertown")
	require.NoError(t, err)
	assert.Equal(t, "rivertown", info.CityID)
	assert.Equal(t, "rivertown", info.Snapshot.CityID)

	_, err = svc.Restart(ctx, id, "atlantis")
	assert.ErrorIs(t, err, service.ErrCityNotFound)
}

func TestGameService_Cities(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	cities, err := svc.ListCities(ctx)
	require.NoError(t, err)
	assert.Len(t, cities, 2)

	city, err := svc.LoadCity(ctx, "rivertown")
	require.NoError(t, err)
	assert.Len(t, city.Rivers, 1)

	assert.ErrorIs(t, svc.SaveCity(ctx, "broken", &engine.CityConfig{Name: "BROKEN"}), service.ErrInvalidCity)
	assert.ErrorIs(t, svc.SaveCity(ctx, "nil", nil), service.ErrInvalidCity)
	require.NoError(t, svc.SaveCity(ctx, "copy", engine.DefaultCity()))
	_, err = svc.LoadCity(ctx, "copy")
	assert.NoError(t, err)
}

func TestGameService_NoScoreStore(t *testing.T) {
	svc := service.NewGameService(NewMockSessionManager(), NewMockConfigManager(), nil)
	top, err := svc.TopScores(context.Background(), "custom", "", 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}
