package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEngine builds an engine with no generated stations and places the
// given stations in order, shaped circle, triangle, square, circle...
func newTestEngine(t *testing.T, city *CityConfig, stations ...Point) *GameEngine {
	t.Helper()
	e, err := NewEngine(city, DesktopRules(), WithSeed(42), WithEmptyMap())
	require.NoError(t, err)
	for i, p := range stations {
		_, err := e.PlaceStation(p, CommonShapes[i%len(CommonShapes)])
		require.NoError(t, err)
	}
	return e
}

func TestNewEngine(t *testing.T) {
	t.Run("fresh game", func(t *testing.T) {
		e, err := NewEngine(riverCity(), DesktopRules(), WithSeed(1))
		require.NoError(t, err)

		s := e.GetState()
		assert.Equal(t, "river", s.CityID)
		assert.Equal(t, VariantDesktop, s.Variant)
		assert.Equal(t, 1, s.Week)
		assert.Equal(t, 1, s.Day)
		assert.Equal(t, 6.0, s.TimeOfDay)
		assert.Equal(t, 1, s.GameSpeed)
		assert.Equal(t, NoStation, s.FailedStation)
		assert.Len(t, s.Lines, 3)
		assert.Equal(t, 3, s.Resources.Trains)
		assert.Equal(t, 0, s.Resources.Bridges)
		assert.Equal(t, InteractionIdle, s.Interaction.Mode)
		assert.False(t, e.IsGameOver())
	})

	t.Run("nil city falls back to default", func(t *testing.T) {
		e, err := NewEngine(nil, DesktopRules(), WithSeed(1))
		require.NoError(t, err)
		assert.Equal(t, "custom", e.GetCity().ID)
	})

	t.Run("invalid rules", func(t *testing.T) {
		rules := DesktopRules()
		rules.WaterSamples = 1
		_, err := NewEngine(riverCity(), rules)
		assert.Error(t, err)
	})

	t.Run("invalid city", func(t *testing.T) {
		city := riverCity()
		city.SpawnZones = nil
		_, err := NewEngine(city, DesktopRules())
		assert.Error(t, err)
	})
}

func TestGenerateInitialStations(t *testing.T) {
	t.Run("stations avoid water and keep their distance", func(t *testing.T) {
		for seed := uint64(1); seed <= 20; seed++ {
			e, err := NewEngine(riverCity(), DesktopRules(), WithSeed(seed))
			require.NoError(t, err)

			stations := e.GetState().Stations
			assert.NotEmpty(t, stations)
			assert.LessOrEqual(t, len(stations), 6)
			for i, s := range stations {
				assert.Equal(t, StationID(i), s.ID)
				assert.False(t, e.city.IsInWater(s.Pos, 1000, 1000), "station %d in water", i)
				assert.Equal(t, 6, s.Capacity)
				assert.NotEmpty(t, s.Zone)
				for j := 0; j < i; j++ {
					assert.GreaterOrEqual(t, s.Pos.DistanceTo(stations[j].Pos), 150.0)
				}
			}
		}
	})

	t.Run("first stations use common shapes", func(t *testing.T) {
		e, err := NewEngine(riverCity(), DesktopRules(), WithSeed(7))
		require.NoError(t, err)
		for _, s := range e.GetState().Stations[:3] {
			assert.False(t, s.Shape.IsRare())
		}
	})

	t.Run("same seed same map", func(t *testing.T) {
		a, err := NewEngine(riverCity(), DesktopRules(), WithSeed(99))
		require.NoError(t, err)
		b, err := NewEngine(riverCity(), DesktopRules(), WithSeed(99))
		require.NoError(t, err)
		assert.Equal(t, a.GetState().Stations, b.GetState().Stations)
	})

	t.Run("exhausted slots are skipped", func(t *testing.T) {
		flooded := &CityConfig{
			ID:         "flooded",
			Name:       "FLOODED",
			Bays:       []Bay{{X: 0, Y: 0, Width: 1, Height: 1}},
			SpawnZones: []SpawnZone{{Name: "Sea", X: 0.1, Y: 0.1, W: 0.8, H: 0.8}},
		}
		e, err := NewEngine(flooded, DesktopRules(), WithSeed(3))
		require.NoError(t, err)
		assert.Empty(t, e.GetState().Stations)
	})

	t.Run("crowded zone places fewer stations", func(t *testing.T) {
		tiny := &CityConfig{
			ID:         "tiny",
			Name:       "TINY",
			SpawnZones: []SpawnZone{{Name: "Block", X: 0.5, Y: 0.5, W: 0.05, H: 0.05}},
		}
		e, err := NewEngine(tiny, DesktopRules(), WithSeed(3))
		require.NoError(t, err)
		assert.Len(t, e.GetState().Stations, 1)
	})

	t.Run("zone weights bias placement", func(t *testing.T) {
		weighted := &CityConfig{
			ID:   "weighted",
			Name: "WEIGHTED",
			SpawnZones: []SpawnZone{
				{Name: "Heavy", X: 0, Y: 0, W: 0.5, H: 1, Weight: 1000},
				{Name: "Light", X: 0.5, Y: 0, W: 0.5, H: 1, Weight: 0.001},
			},
		}
		e, err := NewEngine(weighted, DesktopRules(), WithSeed(5), WithEmptyMap())
		require.NoError(t, err)
		heavy := 0
		for i := 0; i < 200; i++ {
			if e.pickZone().Name == "Heavy" {
				heavy++
			}
		}
		assert.Greater(t, heavy, 190)
	})
}

func TestPlaceStation(t *testing.T) {
	e := newTestEngine(t, riverCity())

	t.Run("on land", func(t *testing.T) {
		id, err := e.PlaceStation(Point{X: 100, Y: 100}, Star)
		require.NoError(t, err)
		assert.Equal(t, Star, e.GetState().Stations[id].Shape)
	})

	t.Run("in water", func(t *testing.T) {
		_, err := e.PlaceStation(Point{X: 100, Y: 500}, Circle)
		assert.ErrorIs(t, err, ErrInWater)
	})

	t.Run("limit", func(t *testing.T) {
		for len(e.GetState().Stations) < e.GetRules().MaxStations {
			_, err := e.PlaceStation(Point{X: 100, Y: 100}, Circle)
			require.NoError(t, err)
		}
		_, err := e.PlaceStation(Point{X: 100, Y: 100}, Circle)
		assert.ErrorIs(t, err, ErrStationLimit)
	})
}

func TestStationAt(t *testing.T) {
	e := newTestEngine(t, DefaultCity(), Point{X: 100, Y: 100}, Point{X: 300, Y: 100})

	t.Run("direct hit", func(t *testing.T) {
		id, ok := e.StationAt(Point{X: 110, Y: 100}, false)
		assert.True(t, ok)
		assert.Equal(t, StationID(0), id)
	})

	t.Run("touch radius is larger", func(t *testing.T) {
		_, ok := e.StationAt(Point{X: 340, Y: 100}, false)
		assert.False(t, ok)

		id, ok := e.StationAt(Point{X: 340, Y: 100}, true)
		assert.True(t, ok)
		assert.Equal(t, StationID(1), id)
	})

	t.Run("miss", func(t *testing.T) {
		id, ok := e.StationAt(Point{X: 200, Y: 100}, true)
		assert.False(t, ok)
		assert.Equal(t, NoStation, id)
	})
}

func TestSpawnPassenger(t *testing.T) {
	t.Run("needs two stations", func(t *testing.T) {
		e := newTestEngine(t, DefaultCity(), Point{X: 100, Y: 100})
		assert.False(t, e.spawnPassenger())
		assert.Equal(t, 0, e.GetState().Spawned)
	})

	t.Run("targets the shape of another station", func(t *testing.T) {
		e := newTestEngine(t, DefaultCity(), Point{X: 100, Y: 100}, Point{X: 500, Y: 100})
		for i := 0; i < 50; i++ {
			require.True(t, e.spawnPassenger())
		}
		s := e.GetState()
		assert.Equal(t, 50, s.Spawned)
		assert.Equal(t, 50, s.NextPassengerID)
		for _, p := range s.Stations[0].Queue {
			assert.Equal(t, Triangle, p.TargetShape)
			assert.Equal(t, StationID(0), p.Origin)
		}
		for _, p := range s.Stations[1].Queue {
			assert.Equal(t, Circle, p.TargetShape)
		}
	})

	t.Run("may target the origin shape", func(t *testing.T) {
		e := newTestEngine(t, DefaultCity(), Point{X: 100, Y: 100}, Point{X: 500, Y: 100})
		_, err := e.PlaceStation(Point{X: 900, Y: 100}, Circle)
		require.NoError(t, err)

		for i := 0; i < 300; i++ {
			e.spawnPassenger()
		}
		sameShape := 0
		for _, st := range e.GetState().Stations {
			for _, p := range st.Queue {
				if p.TargetShape == st.Shape {
					sameShape++
				}
			}
		}
		assert.Greater(t, sameShape, 0)
	})
}

func TestGameControls(t *testing.T) {
	t.Run("game speed", func(t *testing.T) {
		e := newTestEngine(t, DefaultCity())
		assert.NoError(t, e.SetGameSpeed(2))
		assert.Equal(t, 2, e.GetState().GameSpeed)
		assert.NoError(t, e.SetGameSpeed(0))
		assert.ErrorIs(t, e.SetGameSpeed(3), ErrInvalidSpeed)
		assert.ErrorIs(t, e.SetGameSpeed(-1), ErrInvalidSpeed)
		assert.Equal(t, 0, e.GetState().GameSpeed)
	})

	t.Run("toggle pause", func(t *testing.T) {
		e := newTestEngine(t, DefaultCity())
		paused, err := e.TogglePause()
		require.NoError(t, err)
		assert.True(t, paused)
		paused, err = e.TogglePause()
		require.NoError(t, err)
		assert.False(t, paused)
	})

	t.Run("commands refused after game over", func(t *testing.T) {
		e := newTestEngine(t, DefaultCity(), Point{X: 100, Y: 100}, Point{X: 500, Y: 100})
		e.GetState().GameOver = true

		_, err := e.StartLine(0)
		assert.ErrorIs(t, err, ErrGameOver)
		assert.ErrorIs(t, e.ExtendLine(0, 1, false), ErrGameOver)
		assert.ErrorIs(t, e.SetGameSpeed(1), ErrGameOver)
		_, err = e.TogglePause()
		assert.ErrorIs(t, err, ErrGameOver)
		_, err = e.AddTrain(0)
		assert.ErrorIs(t, err, ErrGameOver)
	})

	t.Run("restart", func(t *testing.T) {
		e, err := NewEngine(riverCity(), DesktopRules(), WithSeed(11))
		require.NoError(t, err)
		s := e.GetState()
		s.Score = 12
		s.GameOver = true

		require.NoError(t, e.Restart(nil))
		assert.Equal(t, 0, e.GetScore())
		assert.False(t, e.IsGameOver())
		assert.Equal(t, "river", e.GetState().CityID)

		require.NoError(t, e.Restart(DefaultCity()))
		assert.Equal(t, "custom", e.GetState().CityID)
		assert.Equal(t, 3, e.GetState().Resources.Bridges)
	})
}

func TestSetState(t *testing.T) {
	e := newTestEngine(t, DefaultCity(), Point{X: 100, Y: 100}, Point{X: 500, Y: 100})

	t.Run("nil state", func(t *testing.T) {
		assert.Error(t, e.SetState(nil))
	})

	t.Run("desynced segments", func(t *testing.T) {
		broken := *e.GetState()
		broken.Lines = []Line{{ID: 0, Stations: []StationID{0, 1}}}
		assert.Error(t, e.SetState(&broken))
	})

	t.Run("unknown station", func(t *testing.T) {
		broken := *e.GetState()
		broken.Lines = []Line{{ID: 0, Stations: []StationID{0, 9}, Segments: []Segment{{From: 0, To: 9}}}}
		assert.ErrorIs(t, e.SetState(&broken), ErrUnknownStation)
	})

	t.Run("round trip", func(t *testing.T) {
		state := e.GetState()
		other := newTestEngine(t, DefaultCity())
		require.NoError(t, other.SetState(state))
		assert.Same(t, state, other.GetState())
	})
}

func TestSnapshot(t *testing.T) {
	e := newTestEngine(t, DefaultCity(), Point{X: 100, Y: 100}, Point{X: 500, Y: 100})
	line, err := e.StartLine(0)
	require.NoError(t, err)
	require.NoError(t, e.ExtendLine(line, 1, false))
	require.NoError(t, e.FinishDrawing())
	e.spawnPassenger()

	snap := e.Snapshot()
	assert.Equal(t, "custom", snap.CityID)
	assert.Len(t, snap.Stations, 2)
	assert.Len(t, snap.Lines, 3)
	require.Len(t, snap.Trains, 1)
	assert.Equal(t, 1, snap.Waiting)
	assert.Equal(t, 0, snap.Riding)
	assert.Equal(t, 2, snap.Resources.Lines)
	assert.Equal(t, 2, snap.Resources.Trains)
	assert.Equal(t, "06:00", snap.Clock)
	assert.Equal(t, "MON", snap.DayName)
	assert.Equal(t, Point{X: 100, Y: 100}, snap.Trains[0].Pos)
	assert.Equal(t, 6, snap.Trains[0].Capacity)

	snap.Lines[line].Stations[0] = 1
	assert.Equal(t, StationID(0), e.GetState().Lines[line].Stations[0])
}
