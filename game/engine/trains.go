package engine

import (
	"slices"

	"github.com/samber/lo"
)

// AddTrain puts a train from the pool on a line
func (e *GameEngine) AddTrain(id LineID) (TrainID, error) {
	if e.state.GameOver {
		return 0, ErrGameOver
	}
	line, err := e.line(id)
	if err != nil {
		return 0, err
	}
	if line.Empty() {
		return 0, ErrLineTooShort
	}
	if e.state.Resources.Trains <= 0 {
		return 0, ErrNoTrains
	}
	return e.addTrain(line), nil
}

func (e *GameEngine) addTrain(line *Line) TrainID {
	id := TrainID(e.state.NextTrainID)
	e.state.NextTrainID++
	e.state.Resources.Trains--

	e.state.Trains = append(e.state.Trains, Train{
		ID:         id,
		Line:       line.ID,
		Direction:  1,
		Speed:      e.rules.TrainSpeed,
		Capacity:   e.rules.TrainCapacity,
		Passengers: []Passenger{},
		State:      TrainMoving,
		Station:    line.Stations[0],
	})
	line.Trains = append(line.Trains, id)
	return id
}

// AddCarriage attaches a carriage from the pool to a train
func (e *GameEngine) AddCarriage(id TrainID) error {
	if e.state.GameOver {
		return ErrGameOver
	}
	t, err := e.train(id)
	if err != nil {
		return err
	}
	if e.state.Resources.Carriages <= 0 {
		return ErrNoCarriages
	}
	e.state.Resources.Carriages--
	t.Carriages++
	return nil
}

// removeTrains takes every train off a line and back to the pool. Riders are
// put back in the queue of the last station their train visited.
func (e *GameEngine) removeTrains(line *Line) {
	if len(line.Trains) == 0 {
		return
	}
	e.state.Trains = slices.DeleteFunc(e.state.Trains, func(t Train) bool {
		if t.Line != line.ID {
			return false
		}
		if len(t.Passengers) > 0 {
			st := &e.state.Stations[t.Station]
			st.Queue = append(st.Queue, t.Passengers...)
		}
		e.state.Resources.Trains++
		e.state.Resources.Carriages += t.Carriages
		return true
	})
	line.Trains = line.Trains[:0]
}

// refitTrains moves trains back onto a shortened line. headRemoved means
// every station index shifted down by one.
func (e *GameEngine) refitTrains(line *Line, headRemoved bool) {
	last := len(line.Segments) - 1
	for i := range e.state.Trains {
		t := &e.state.Trains[i]
		if t.Line != line.ID {
			continue
		}
		switch {
		case headRemoved && t.Segment == 0:
			t.Position, t.Direction = 0, 1
		case headRemoved:
			t.Segment--
		}
		if t.Segment > last {
			t.Segment, t.Position, t.Direction = last, 1, -1
		}
		if line.IndexOf(t.Station) < 0 {
			t.Station = line.Stations[t.Segment]
			if t.Position >= 1 {
				t.Station = line.Stations[t.Segment+1]
			}
		}
	}
}

// tickTrains advances every train by dt
func (e *GameEngine) tickTrains(dt float64) {
	for i := range e.state.Trains {
		e.advanceTrain(&e.state.Trains[i], dt)
	}
}

// advanceTrain runs one step of the train state machine. A stopped train
// counts down its dwell, then unloads and loads before moving again. A moving
// train stops on reaching a station and reverses at either terminus.
func (e *GameEngine) advanceTrain(t *Train, dt float64) {
	line := &e.state.Lines[t.Line]
	if len(line.Segments) == 0 {
		return
	}

	if t.State == TrainStopped {
		t.Dwell -= dt
		if t.Dwell <= 0 {
			t.Dwell = 0
			t.State = TrainMoving
			e.unload(t)
			e.load(t, line)
		}
		return
	}

	if t.Segment >= len(line.Segments) {
		t.Segment = len(line.Segments) - 1
	}
	length := line.Segments[t.Segment].Length
	if length <= 0 {
		length = 1
	}
	t.Position += float64(t.Direction) * t.Speed * dt / length

	switch {
	case t.Direction > 0 && t.Position >= 1:
		arrived := line.Stations[t.Segment+1]
		t.Segment++
		t.Position = 0
		if t.Segment >= len(line.Segments) {
			t.Segment = len(line.Segments) - 1
			t.Position = 1
			t.Direction = -1
		}
		e.stopAt(t, arrived)
	case t.Direction < 0 && t.Position <= 0:
		arrived := line.Stations[t.Segment]
		t.Segment--
		t.Position = 1
		if t.Segment < 0 {
			t.Segment = 0
			t.Position = 0
			t.Direction = 1
		}
		e.stopAt(t, arrived)
	}
}

func (e *GameEngine) stopAt(t *Train, station StationID) {
	t.Station = station
	t.State = TrainStopped
	t.Dwell = e.rules.DwellRegular
	if e.state.Stations[station].Interchange {
		t.Dwell = e.rules.DwellInterchange
	}
}

// unload delivers riders whose target shape matches the current station
func (e *GameEngine) unload(t *Train) {
	shape := e.state.Stations[t.Station].Shape
	kept := t.Passengers[:0]
	for _, p := range t.Passengers {
		if p.TargetShape == shape {
			e.state.Score++
			e.state.Delivered++
			continue
		}
		kept = append(kept, p)
	}
	t.Passengers = kept
}

// load boards waiting passengers, last in line first, while there is room and
// the line reaches a station of their target shape.
func (e *GameEngine) load(t *Train, line *Line) {
	st := &e.state.Stations[t.Station]
	capacity := t.TotalCapacity(e.rules.CarriageCapacity)
	served := lo.Uniq(lo.Map(line.Stations, func(id StationID, _ int) Shape {
		return e.state.Stations[id].Shape
	}))

	for i := len(st.Queue) - 1; i >= 0 && len(t.Passengers) < capacity; i-- {
		p := st.Queue[i]
		if !slices.Contains(served, p.TargetShape) {
			continue
		}
		t.Passengers = append(t.Passengers, p)
		st.Queue = slices.Delete(st.Queue, i, i+1)
	}
}

// WorldPosition interpolates a train's position between the stations of its segment
func (e *GameEngine) WorldPosition(t *Train) Point {
	line := &e.state.Lines[t.Line]
	if len(line.Segments) == 0 {
		return e.state.Stations[t.Station].Pos
	}
	seg := line.Segments[min(t.Segment, len(line.Segments)-1)]
	return e.state.Stations[seg.From].Pos.Lerp(e.state.Stations[seg.To].Pos, t.Position)
}
