package engine

import (
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// generateInitialStations places the opening stations. A slot whose
// placement attempts run out is skipped and the game starts with fewer stations.
func (e *GameEngine) generateInitialStations() {
	for i := 0; i < e.rules.StationCount; i++ {
		if _, ok := e.spawnStation(i < len(CommonShapes)); !ok {
			log.WithField("slot", i).Debug("no valid position for station, slot skipped")
		}
	}
}

// spawnStations adds the stations that appear on a new day
func (e *GameEngine) spawnStations() []StationID {
	var added []StationID
	for i := 0; i < e.rules.StationsPerDay && len(e.state.Stations) < e.rules.MaxStations; i++ {
		commonOnly := len(e.state.Stations) < len(CommonShapes)
		if id, ok := e.spawnStation(commonOnly); ok {
			added = append(added, id)
		}
	}
	return added
}

// spawnStation rejection-samples a land position inside a spawn zone that
// keeps MinStationDistance from every existing station.
func (e *GameEngine) spawnStation(commonOnly bool) (StationID, bool) {
	for attempt := 0; attempt < e.rules.PlacementAttempts; attempt++ {
		zone := e.pickZone()
		p := Point{
			X: (zone.X + e.rng.Float64()*zone.W) * e.rules.CanvasWidth,
			Y: (zone.Y + e.rng.Float64()*zone.H) * e.rules.CanvasHeight,
		}
		if e.city.IsInWater(p, e.rules.CanvasWidth, e.rules.CanvasHeight) || !e.farFromStations(p) {
			continue
		}

		shapes := CommonShapes
		if !commonOnly {
			shapes = slices.Concat(CommonShapes, RareShapes)
		}
		return e.addStation(p, shapes[e.rng.IntN(len(shapes))], zone.Name), true
	}
	return NoStation, false
}

// pickZone chooses a spawn zone with probability proportional to its weight
func (e *GameEngine) pickZone() SpawnZone {
	zones := e.city.SpawnZones
	total := lo.SumBy(zones, func(z SpawnZone) float64 { return z.weight() })
	r := e.rng.Float64() * total
	for _, z := range zones {
		r -= z.weight()
		if r < 0 {
			return z
		}
	}
	return zones[len(zones)-1]
}

func (e *GameEngine) farFromStations(p Point) bool {
	return !lo.ContainsBy(e.state.Stations, func(s Station) bool {
		return s.Pos.DistanceTo(p) < e.rules.MinStationDistance
	})
}

func (e *GameEngine) addStation(p Point, shape Shape, zone string) StationID {
	id := StationID(len(e.state.Stations))
	e.state.Stations = append(e.state.Stations, Station{
		ID:       id,
		Pos:      p,
		Shape:    shape,
		Capacity: e.rules.StationCapacity,
		Queue:    []Passenger{},
		Zone:     zone,
	})
	return id
}

// PlaceStation adds a station at a chosen position. Only water and the
// station cap are checked; spacing is left to the caller.
func (e *GameEngine) PlaceStation(p Point, shape Shape) (StationID, error) {
	if e.state.GameOver {
		return NoStation, ErrGameOver
	}
	if len(e.state.Stations) >= e.rules.MaxStations {
		return NoStation, ErrStationLimit
	}
	if e.city.IsInWater(p, e.rules.CanvasWidth, e.rules.CanvasHeight) {
		return NoStation, ErrInWater
	}
	return e.addStation(p, shape, ""), nil
}

// StationAt returns the station nearest to p within the hit radius.
// Touch input uses the larger radius.
func (e *GameEngine) StationAt(p Point, touch bool) (StationID, bool) {
	radius := e.rules.HitRadius
	if touch {
		radius = e.rules.TouchHitRadius
	}

	best, bestDist := NoStation, math.Inf(1)
	for _, s := range e.state.Stations {
		if d := s.Pos.DistanceTo(p); d <= radius && d < bestDist {
			best, bestDist = s.ID, d
		}
	}
	return best, best != NoStation
}

// spawnPassenger queues a passenger at a random station. The target is the
// shape of another random station, which may match the origin's own shape.
func (e *GameEngine) spawnPassenger() bool {
	n := len(e.state.Stations)
	if n < 2 {
		return false
	}

	origin := e.rng.IntN(n)
	other := e.rng.IntN(n - 1)
	if other >= origin {
		other++
	}

	s := e.state
	s.Stations[origin].Queue = append(s.Stations[origin].Queue, Passenger{
		ID:          s.NextPassengerID,
		Origin:      StationID(origin),
		TargetShape: s.Stations[other].Shape,
	})
	s.NextPassengerID++
	s.Spawned++
	return true
}

// tickStations accrues wait time and moves each overcrowding accumulator
// towards MaxOvercrowding or back down to 0.
func (e *GameEngine) tickStations(dt float64) {
	for i := range e.state.Stations {
		st := &e.state.Stations[i]
		for j := range st.Queue {
			st.Queue[j].WaitTime += dt
		}
		if st.Overcrowded() {
			st.Overcrowding = math.Min(st.Overcrowding+dt, e.rules.MaxOvercrowding)
		} else {
			st.Overcrowding = math.Max(st.Overcrowding-dt, 0)
		}
	}
}

// detectFailure ends the game on the first station whose accumulator is full
func (e *GameEngine) detectFailure() (StationID, bool) {
	for _, st := range e.state.Stations {
		if st.Overcrowding >= e.rules.MaxOvercrowding {
			e.state.GameOver = true
			e.state.FailedStation = st.ID
			e.state.Interaction = Interaction{Mode: InteractionIdle}
			log.WithFields(logrus.Fields{
				"station": st.ID,
				"score":   e.state.Score,
			}).Debug("station overcrowded, game over")
			return st.ID, true
		}
	}
	return NoStation, false
}
