package engine

import (
	"slices"

	"github.com/samber/lo"
)

// addLine appends an empty line with the next color
func (e *GameEngine) addLine() LineID {
	id := LineID(len(e.state.Lines))
	e.state.Lines = append(e.state.Lines, Line{
		ID:       id,
		Color:    LineColors[int(id)%len(LineColors)],
		Stations: []StationID{},
		Segments: []Segment{},
		Trains:   []TrainID{},
		Bridges:  []Bridge{},
	})
	return id
}

// FreeLines counts lines that have not been drawn yet
func (e *GameEngine) FreeLines() int {
	return lo.CountBy(e.state.Lines, func(l Line) bool { return len(l.Stations) == 0 })
}

// StartLine begins a drawing gesture at a station. Starting on the terminus
// of an existing line resumes drawing that line from that end; otherwise the
// first undrawn line is used.
func (e *GameEngine) StartLine(station StationID) (LineID, error) {
	if e.state.GameOver {
		return 0, ErrGameOver
	}
	if e.state.Interaction.Mode == InteractionDrawing {
		return 0, ErrAlreadyDrawing
	}
	if _, err := e.station(station); err != nil {
		return 0, err
	}

	for _, l := range e.state.Lines {
		if l.Empty() {
			continue
		}
		if l.Stations[0] == station || l.Stations[len(l.Stations)-1] == station {
			e.state.Interaction = Interaction{
				Mode:    InteractionDrawing,
				Line:    l.ID,
				AtStart: l.Stations[0] == station,
			}
			return l.ID, nil
		}
	}

	idx := slices.IndexFunc(e.state.Lines, func(l Line) bool { return len(l.Stations) == 0 })
	if idx < 0 {
		return 0, ErrNoFreeLine
	}
	line := &e.state.Lines[idx]
	line.Stations = append(line.Stations, station)
	e.recalculateSegments(line)
	e.state.Interaction = Interaction{Mode: InteractionDrawing, Line: line.ID}
	return line.ID, nil
}

// FinishDrawing ends the current gesture. A line left with a single station is cleared.
func (e *GameEngine) FinishDrawing() error {
	if e.state.Interaction.Mode != InteractionDrawing {
		return ErrNotDrawing
	}
	id := e.state.Interaction.Line
	e.state.Interaction = Interaction{Mode: InteractionIdle}

	line, err := e.line(id)
	if err != nil {
		return err
	}
	if len(line.Stations) == 1 {
		e.clearLine(line)
	}
	return nil
}

// ExtendLine adds a station at one end of a line. A water-crossing segment
// consumes a bridge; without one the extension is refused and nothing changes.
func (e *GameEngine) ExtendLine(id LineID, station StationID, atStart bool) error {
	if e.state.GameOver {
		return ErrGameOver
	}
	line, err := e.line(id)
	if err != nil {
		return err
	}
	st, err := e.station(station)
	if err != nil {
		return err
	}
	if line.IndexOf(station) >= 0 {
		return ErrStationOnLine
	}

	var bridge *Bridge
	if len(line.Stations) > 0 {
		end := line.Stations[len(line.Stations)-1]
		if atStart {
			end = line.Stations[0]
		}
		from := e.state.Stations[end].Pos
		crosses := e.city.CrossesWater(from, st.Pos, e.rules.CanvasWidth, e.rules.CanvasHeight, e.rules.WaterSamples)
		if crosses && e.rules.BridgesRequired && !line.hasBridge(end, station) {
			if e.state.Resources.Bridges <= 0 {
				return ErrNoBridge
			}
			bridge = &Bridge{From: end, To: station, Line: line.ID}
		}
	}

	if atStart {
		line.Stations = slices.Insert(line.Stations, 0, station)
	} else {
		line.Stations = append(line.Stations, station)
	}
	if bridge != nil {
		e.state.Resources.Bridges--
		e.state.BridgesBuilt++
		line.Bridges = append(line.Bridges, *bridge)
	}
	e.recalculateSegments(line)
	e.recalculateInterchanges()

	if len(line.Stations) == 2 && len(line.Trains) == 0 && e.state.Resources.Trains > 0 {
		e.addTrain(line)
	}
	return nil
}

// TruncateLine removes stations from cutIndex to the end of the line. A cut at
// index 0 removes only the first station. Bridges of removed segments are lost.
// A line left with a single station goes back to the free pool, unless it is
// being drawn, in which case FinishDrawing frees it.
func (e *GameEngine) TruncateLine(id LineID, cutIndex int) error {
	if e.state.GameOver {
		return ErrGameOver
	}
	line, err := e.line(id)
	if err != nil {
		return err
	}
	if cutIndex < 0 || cutIndex >= len(line.Stations) {
		return ErrCutIndex
	}

	if cutIndex == 0 {
		line.Stations = slices.Delete(line.Stations, 0, 1)
	} else {
		line.Stations = line.Stations[:cutIndex]
	}
	e.recalculateSegments(line)
	e.dropOrphanBridges(line)

	drawing := e.state.Interaction.Mode == InteractionDrawing && e.state.Interaction.Line == id
	switch {
	case len(line.Stations) == 1 && !drawing:
		e.clearLine(line)
		return nil
	case line.Empty():
		e.removeTrains(line)
	default:
		e.refitTrains(line, cutIndex == 0)
	}
	e.recalculateInterchanges()
	return nil
}

// ClearLine removes every station and train from a line and frees it
func (e *GameEngine) ClearLine(id LineID) error {
	if e.state.GameOver {
		return ErrGameOver
	}
	line, err := e.line(id)
	if err != nil {
		return err
	}
	e.clearLine(line)
	if e.state.Interaction.Mode == InteractionDrawing && e.state.Interaction.Line == id {
		e.state.Interaction = Interaction{Mode: InteractionIdle}
	}
	return nil
}

func (e *GameEngine) clearLine(line *Line) {
	line.Stations = line.Stations[:0]
	e.recalculateSegments(line)
	line.Bridges = line.Bridges[:0]
	e.removeTrains(line)
	e.recalculateInterchanges()
}

// recalculateSegments rebuilds the derived segment list of a line. It is the
// only writer of Line.Segments.
func (e *GameEngine) recalculateSegments(line *Line) {
	segments := make([]Segment, 0, max(0, len(line.Stations)-1))
	for i := 0; i+1 < len(line.Stations); i++ {
		a := e.state.Stations[line.Stations[i]]
		b := e.state.Stations[line.Stations[i+1]]
		segments = append(segments, Segment{
			From:        a.ID,
			To:          b.ID,
			Length:      a.Pos.DistanceTo(b.Pos),
			NeedsBridge: e.city.CrossesWater(a.Pos, b.Pos, e.rules.CanvasWidth, e.rules.CanvasHeight, e.rules.WaterSamples),
		})
	}
	line.Segments = segments
}

// recalculateInterchanges flags stations served by two or more lines or built up by the player.
// A line with fewer than two stations serves nothing.
func (e *GameEngine) recalculateInterchanges() {
	served := make(map[StationID]int)
	for _, l := range e.state.Lines {
		if l.Empty() {
			continue
		}
		for _, id := range lo.Uniq(l.Stations) {
			served[id]++
		}
	}
	for i := range e.state.Stations {
		st := &e.state.Stations[i]
		st.Interchange = st.InterchangeBuilt || served[st.ID] >= 2
	}
}

func (l *Line) hasBridge(a, b StationID) bool {
	return lo.ContainsBy(l.Bridges, func(br Bridge) bool {
		return (br.From == a && br.To == b) || (br.From == b && br.To == a)
	})
}

func (l *Line) hasSegment(a, b StationID) bool {
	return lo.ContainsBy(l.Segments, func(s Segment) bool {
		return (s.From == a && s.To == b) || (s.From == b && s.To == a)
	})
}

// dropOrphanBridges forgets bridges whose segment no longer exists. They are not refunded.
func (e *GameEngine) dropOrphanBridges(line *Line) {
	line.Bridges = lo.Filter(line.Bridges, func(b Bridge, _ int) bool {
		return line.hasSegment(b.From, b.To)
	})
}

// BuildInterchange spends an interchange upgrade on a station
func (e *GameEngine) BuildInterchange(id StationID) error {
	if e.state.GameOver {
		return ErrGameOver
	}
	st, err := e.station(id)
	if err != nil {
		return err
	}
	if st.InterchangeBuilt {
		return ErrAlreadyInterchange
	}
	if e.state.Resources.Interchanges <= 0 {
		return ErrNoInterchanges
	}
	e.state.Resources.Interchanges--
	st.InterchangeBuilt = true
	st.Interchange = true
	st.Capacity += e.rules.InterchangeBonus
	return nil
}
