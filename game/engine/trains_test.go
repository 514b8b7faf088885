package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeStopLine builds A-B-C with 1000px segments and one train at A
func threeStopLine(t *testing.T) *GameEngine {
	t.Helper()
	e := newTestEngine(t, DefaultCity(), Point{X: 0, Y: 100}, Point{X: 1000, Y: 100}, Point{X: 1000, Y: 1100})
	for i := 0; i < 3; i++ {
		require.NoError(t, e.ExtendLine(0, StationID(i), false))
	}
	require.Len(t, e.GetState().Trains, 1)
	return e
}

func TestAdvanceTrain(t *testing.T) {
	t.Run("stops at the next station after 2000ms", func(t *testing.T) {
		e := threeStopLine(t)
		train := &e.GetState().Trains[0]

		for i := 0; i < 19; i++ {
			e.advanceTrain(train, 100)
		}
		assert.Equal(t, TrainMoving, train.State)
		assert.Equal(t, 0, train.Segment)

		e.advanceTrain(train, 100)
		assert.Equal(t, TrainStopped, train.State)
		assert.Equal(t, StationID(1), train.Station)
		assert.False(t, e.GetState().Stations[1].Interchange)
		assert.Equal(t, 700.0, train.Dwell)
		assert.Equal(t, 1, train.Segment)
		assert.Equal(t, 0.0, train.Position)
	})

	t.Run("interchange dwell is shorter", func(t *testing.T) {
		e := threeStopLine(t)
		_, err := e.PlaceStation(Point{X: 1000, Y: 600}, Star)
		require.NoError(t, err)
		require.NoError(t, e.ExtendLine(1, 1, false))
		require.NoError(t, e.ExtendLine(1, 3, false))
		require.True(t, e.GetState().Stations[1].Interchange)

		train := &e.GetState().Trains[0]
		for i := 0; i < 20; i++ {
			e.advanceTrain(train, 100)
		}
		assert.Equal(t, TrainStopped, train.State)
		assert.Equal(t, 400.0, train.Dwell)
	})

	t.Run("dwell then move on", func(t *testing.T) {
		e := threeStopLine(t)
		train := &e.GetState().Trains[0]
		for i := 0; i < 20; i++ {
			e.advanceTrain(train, 100)
		}
		e.advanceTrain(train, 600)
		assert.Equal(t, TrainStopped, train.State)
		assert.InDelta(t, 100, train.Dwell, 1e-9)

		e.advanceTrain(train, 100)
		assert.Equal(t, TrainMoving, train.State)
		assert.Equal(t, 0.0, train.Position)

		e.advanceTrain(train, 100)
		assert.InDelta(t, 0.05, train.Position, 1e-9)
	})

	t.Run("reverses at both termini", func(t *testing.T) {
		e := threeStopLine(t)
		train := &e.GetState().Trains[0]

		var stops []StationID
		for i := 0; i < 2000 && len(stops) < 5; i++ {
			wasMoving := train.State == TrainMoving
			e.advanceTrain(train, 50)
			if wasMoving && train.State == TrainStopped {
				stops = append(stops, train.Station)
			}
		}
		assert.Equal(t, []StationID{1, 2, 1, 0, 1}, stops)
		assert.GreaterOrEqual(t, train.Progress(), 0.0)
		assert.LessOrEqual(t, train.Progress(), 2.0)
	})

	t.Run("terminus arrival flips direction", func(t *testing.T) {
		e := threeStopLine(t)
		train := &e.GetState().Trains[0]
		train.Segment, train.Position = 1, 0.99

		e.advanceTrain(train, 100)
		assert.Equal(t, TrainStopped, train.State)
		assert.Equal(t, StationID(2), train.Station)
		assert.Equal(t, -1, train.Direction)
		assert.Equal(t, 1, train.Segment)
		assert.Equal(t, 1.0, train.Position)
	})

	t.Run("idle on an empty line", func(t *testing.T) {
		e := threeStopLine(t)
		train := e.GetState().Trains[0]
		require.NoError(t, e.ClearLine(0))
		e.GetState().Trains = append(e.GetState().Trains, train)

		e.advanceTrain(&e.GetState().Trains[0], 100)
		assert.Equal(t, train.Position, e.GetState().Trains[0].Position)
	})
}

func TestBoarding(t *testing.T) {
	queue := func(e *GameEngine, station StationID, shapes ...Shape) {
		s := e.GetState()
		for _, shape := range shapes {
			s.Stations[station].Queue = append(s.Stations[station].Queue, Passenger{
				ID:          s.NextPassengerID,
				Origin:      station,
				TargetShape: shape,
			})
			s.NextPassengerID++
			s.Spawned++
		}
	}
	departFrom := func(e *GameEngine, train *Train, station StationID) {
		train.State = TrainStopped
		train.Station = station
		train.Dwell = 1
		e.advanceTrain(train, 1)
	}

	t.Run("boards only passengers the line can deliver", func(t *testing.T) {
		e := threeStopLine(t)
		queue(e, 0, Triangle, Star, Square)
		train := &e.GetState().Trains[0]

		departFrom(e, train, 0)
		require.Len(t, train.Passengers, 2)
		assert.Equal(t, Square, train.Passengers[0].TargetShape)
		assert.Equal(t, Triangle, train.Passengers[1].TargetShape)
		require.Len(t, e.GetState().Stations[0].Queue, 1)
		assert.Equal(t, Star, e.GetState().Stations[0].Queue[0].TargetShape)
	})

	t.Run("last in line boards first", func(t *testing.T) {
		e := threeStopLine(t)
		queue(e, 0, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle)
		train := &e.GetState().Trains[0]

		departFrom(e, train, 0)
		assert.Len(t, train.Passengers, 6)
		waiting := e.GetState().Stations[0].Queue
		require.Len(t, waiting, 2)
		assert.Equal(t, 0, waiting[0].ID)
		assert.Equal(t, 1, waiting[1].ID)
		assert.Equal(t, 7, train.Passengers[0].ID)
	})

	t.Run("carriages add capacity", func(t *testing.T) {
		e := threeStopLine(t)
		e.GetState().Resources.Carriages = 1
		train := &e.GetState().Trains[0]
		require.NoError(t, e.AddCarriage(train.ID))
		queue(e, 0, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle, Triangle)

		departFrom(e, train, 0)
		assert.Len(t, train.Passengers, 10)
		assert.ErrorIs(t, e.AddCarriage(train.ID), ErrNoCarriages)
		assert.ErrorIs(t, e.AddCarriage(99), ErrUnknownTrain)
	})

	t.Run("delivery scores on unload", func(t *testing.T) {
		e := threeStopLine(t)
		queue(e, 0, Triangle, Square)
		train := &e.GetState().Trains[0]
		departFrom(e, train, 0)
		require.Len(t, train.Passengers, 2)

		for i := 0; i < 20; i++ {
			e.advanceTrain(train, 100)
		}
		require.Equal(t, TrainStopped, train.State)
		e.advanceTrain(train, 700)

		s := e.GetState()
		assert.Equal(t, 1, s.Score)
		assert.Equal(t, 1, s.Delivered)
		require.Len(t, train.Passengers, 1)
		assert.Equal(t, Square, train.Passengers[0].TargetShape)
		assert.Equal(t, s.Spawned, s.TotalPassengers())
	})
}

func TestAddTrain(t *testing.T) {
	t.Run("needs two stations", func(t *testing.T) {
		e := newTestEngine(t, DefaultCity(), Point{X: 100, Y: 100})
		require.NoError(t, e.ExtendLine(0, 0, false))
		_, err := e.AddTrain(0)
		assert.ErrorIs(t, err, ErrLineTooShort)
		assert.Empty(t, e.GetState().Trains)
		assert.Equal(t, 3, e.GetState().Resources.Trains)
	})

	t.Run("draws from the pool", func(t *testing.T) {
		e := threeStopLine(t)
		id, err := e.AddTrain(0)
		require.NoError(t, err)
		assert.Len(t, e.GetState().Lines[0].Trains, 2)
		assert.Equal(t, 1, e.GetState().Resources.Trains)

		_, err = e.AddTrain(0)
		require.NoError(t, err)
		_, err = e.AddTrain(0)
		assert.ErrorIs(t, err, ErrNoTrains)

		train, err := e.train(id)
		require.NoError(t, err)
		assert.Equal(t, LineID(0), train.Line)
	})

	t.Run("unknown line", func(t *testing.T) {
		e := threeStopLine(t)
		_, err := e.AddTrain(8)
		assert.ErrorIs(t, err, ErrUnknownLine)
	})
}
