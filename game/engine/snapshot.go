package engine

import (
	"slices"

	"github.com/samber/lo"
)

// StationView is the render-facing view of a station
type StationView struct {
	ID            StationID `json:"id"`
	Pos           Point     `json:"pos"`
	Shape         Shape     `json:"shape"`
	Capacity      int       `json:"capacity"`
	Waiting       int       `json:"waiting"`
	WaitingShapes []Shape   `json:"waiting_shapes"`
	Overcrowding  float64   `json:"overcrowding"` // 0..1 of the failure threshold
	Interchange   bool      `json:"interchange"`
	Zone          string    `json:"zone,omitempty"`
}

// LineView is the render-facing view of a line
type LineView struct {
	ID       LineID      `json:"id"`
	Color    string      `json:"color"`
	Stations []StationID `json:"stations"`
	Segments []Segment   `json:"segments"`
	Bridges  []Bridge    `json:"bridges"`
	Trains   []TrainID   `json:"trains"`
}

// TrainView is the render-facing view of a train
type TrainView struct {
	ID         TrainID `json:"id"`
	Line       LineID  `json:"line"`
	Progress   float64 `json:"progress"`
	Pos        Point   `json:"pos"`
	Direction  int     `json:"direction"`
	Passengers int     `json:"passengers"`
	Capacity   int     `json:"capacity"`
	Carriages  int     `json:"carriages"`
	Stopped    bool    `json:"stopped"`
	Dwell      float64 `json:"dwell"`
}

// ResourceView summarizes what the player can still spend
type ResourceView struct {
	Lines        int `json:"lines"`
	Trains       int `json:"trains"`
	Carriages    int `json:"carriages"`
	Bridges      int `json:"bridges"`
	Interchanges int `json:"interchanges"`
}

// Snapshot is a deep copy of everything a renderer needs for one frame.
// Mutating it never affects the engine.
type Snapshot struct {
	CityID   string `json:"city_id"`
	CityName string `json:"city_name"`
	Variant  string `json:"variant"`

	Stations []StationView `json:"stations"`
	Lines    []LineView    `json:"lines"`
	Trains   []TrainView   `json:"trains"`

	Score     int     `json:"score"`
	Week      int     `json:"week"`
	Day       int     `json:"day"`
	DayName   string  `json:"day_name"`
	TimeOfDay float64 `json:"time_of_day"`
	Clock     string  `json:"clock"`
	Elapsed   float64 `json:"elapsed"`

	Resources    ResourceView `json:"resources"`
	BridgesBuilt int          `json:"bridges_built"`

	Spawned   int `json:"spawned"`
	Delivered int `json:"delivered"`
	Waiting   int `json:"waiting"`
	Riding    int `json:"riding"`

	GameSpeed       int           `json:"game_speed"`
	Paused          bool          `json:"paused"`
	GameOver        bool          `json:"game_over"`
	FailedStation   StationID     `json:"failed_station"`
	PendingUpgrades []UpgradeKind `json:"pending_upgrades"`
	Interaction     Interaction   `json:"interaction"`
}

// Snapshot builds an immutable view of the current state
func (e *GameEngine) Snapshot() Snapshot {
	s := e.state
	snap := Snapshot{
		CityID:    e.city.ID,
		CityName:  e.city.Name,
		Variant:   e.rules.Name,
		Score:     s.Score,
		Week:      s.Week,
		Day:       s.Day,
		DayName:   DayName(s.Day),
		TimeOfDay: s.TimeOfDay,
		Clock:     ClockString(s.TimeOfDay),
		Elapsed:   s.Elapsed,
		Resources: ResourceView{
			Lines:        e.FreeLines(),
			Trains:       s.Resources.Trains,
			Carriages:    s.Resources.Carriages,
			Bridges:      s.Resources.Bridges,
			Interchanges: s.Resources.Interchanges,
		},
		BridgesBuilt:    s.BridgesBuilt,
		Spawned:         s.Spawned,
		Delivered:       s.Delivered,
		GameSpeed:       s.GameSpeed,
		Paused:          s.Paused,
		GameOver:        s.GameOver,
		FailedStation:   s.FailedStation,
		PendingUpgrades: slices.Clone(s.PendingUpgrades),
		Interaction:     s.Interaction,
	}

	snap.Stations = lo.Map(s.Stations, func(st Station, _ int) StationView {
		snap.Waiting += len(st.Queue)
		return StationView{
			ID:       st.ID,
			Pos:      st.Pos,
			Shape:    st.Shape,
			Capacity: st.Capacity,
			Waiting:  len(st.Queue),
			WaitingShapes: lo.Map(st.Queue, func(p Passenger, _ int) Shape {
				return p.TargetShape
			}),
			Overcrowding: st.Overcrowding / e.rules.MaxOvercrowding,
			Interchange:  st.Interchange,
			Zone:         st.Zone,
		}
	})

	snap.Lines = lo.Map(s.Lines, func(l Line, _ int) LineView {
		return LineView{
			ID:       l.ID,
			Color:    l.Color,
			Stations: slices.Clone(l.Stations),
			Segments: slices.Clone(l.Segments),
			Bridges:  slices.Clone(l.Bridges),
			Trains:   slices.Clone(l.Trains),
		}
	})

	snap.Trains = lo.Map(s.Trains, func(t Train, _ int) TrainView {
		snap.Riding += len(t.Passengers)
		return TrainView{
			ID:         t.ID,
			Line:       t.Line,
			Progress:   t.Progress(),
			Pos:        e.WorldPosition(&t),
			Direction:  t.Direction,
			Passengers: len(t.Passengers),
			Capacity:   t.TotalCapacity(e.rules.CarriageCapacity),
			Carriages:  t.Carriages,
			Stopped:    t.State == TrainStopped,
			Dwell:      t.Dwell,
		}
	})

	return snap
}

// TotalPassengers counts every passenger ever spawned that is still accounted
// for: queued, riding or delivered. It always equals Spawned.
func (s *GameState) TotalPassengers() int {
	queued := lo.SumBy(s.Stations, func(st Station) int { return len(st.Queue) })
	riding := lo.SumBy(s.Trains, func(t Train) int { return len(t.Passengers) })
	return queued + riding + s.Delivered
}
