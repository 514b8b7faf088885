package engine

import (
	"fmt"
	"math"
	"strings"
)

// Shape is the symbol drawn on a station. Passengers travel to a shape, not to a station.
type Shape int

const (
	Circle Shape = iota
	Triangle
	Square
	Diamond
	Cross
	Star
	Pentagon
	Teardrop
	Oval
	Fan
)

var shapeNames = [...]string{"circle", "triangle", "square", "diamond", "cross", "star", "pentagon", "teardrop", "oval", "fan"}

// CommonShapes are used for the first stations of every city.
var CommonShapes = []Shape{Circle, Triangle, Square}

// RareShapes join the pool once the common shapes are on the map.
var RareShapes = []Shape{Diamond, Cross, Star, Pentagon, Teardrop, Oval, Fan}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return fmt.Sprintf("shape(%d)", int(s))
	}
	return shapeNames[s]
}

// IsRare reports whether the shape belongs to the rare set.
func (s Shape) IsRare() bool {
	return s >= Diamond
}

// ParseShape converts a shape name back into a Shape
func ParseShape(name string) (Shape, error) {
	for i, n := range shapeNames {
		if strings.EqualFold(n, name) {
			return Shape(i), nil
		}
	}
	return 0, fmt.Errorf("unknown shape %q", name)
}

func (s Shape) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(shapeNames) {
		return nil, fmt.Errorf("invalid shape %d", int(s))
	}
	return []byte(shapeNames[s]), nil
}

func (s *Shape) UnmarshalText(text []byte) error {
	parsed, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Point is a position in world space (canvas pixels)
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point          { return Point{X: p.X + q.X, Y: p.Y + q.Y} }
func (p Point) Sub(q Point) Point          { return Point{X: p.X - q.X, Y: p.Y - q.Y} }
func (p Point) Scale(f float64) Point      { return Point{X: p.X * f, Y: p.Y * f} }
func (p Point) Dot(q Point) float64        { return p.X*q.X + p.Y*q.Y }
func (p Point) Len() float64               { return math.Hypot(p.X, p.Y) }
func (p Point) DistanceTo(q Point) float64 { return p.Sub(q).Len() }

// Lerp returns the point at fraction t of the way from p to q
func (p Point) Lerp(q Point, t float64) Point {
	return p.Add(q.Sub(p).Scale(t))
}

type (
	StationID int
	LineID    int
	TrainID   int
)

// NoStation marks an unset station handle
const NoStation StationID = -1

// Passenger waits at a station or rides a train until delivered to a station of TargetShape.
type Passenger struct {
	ID          int       `json:"id"`
	Origin      StationID `json:"origin"`
	TargetShape Shape     `json:"target_shape"`
	WaitTime    float64   `json:"wait_time"` // ms spent queued
}

// Station is a stop on the map. Stations are never removed during a session.
type Station struct {
	ID               StationID   `json:"id"`
	Pos              Point       `json:"pos"`
	Shape            Shape       `json:"shape"`
	Capacity         int         `json:"capacity"`
	Queue            []Passenger `json:"queue"`
	Overcrowding     float64     `json:"overcrowding"` // ms spent over capacity
	Interchange      bool        `json:"interchange"`
	InterchangeBuilt bool        `json:"interchange_built,omitempty"`
	Zone             string      `json:"zone,omitempty"`
}

// Overcrowded reports whether more passengers wait than the station holds
func (s *Station) Overcrowded() bool {
	return len(s.Queue) > s.Capacity
}

// Segment is the edge between two consecutive stations of a line
type Segment struct {
	From        StationID `json:"from"`
	To          StationID `json:"to"`
	Length      float64   `json:"length"`
	NeedsBridge bool      `json:"needs_bridge"`
}

// Bridge is a consumed crossing for one water-crossing segment
type Bridge struct {
	From StationID `json:"from"`
	To   StationID `json:"to"`
	Line LineID    `json:"line"`
}

// Line is an ordered path of stations. Segments are derived from Stations and
// must only be rebuilt through recalculateSegments.
type Line struct {
	ID       LineID      `json:"id"`
	Color    string      `json:"color"`
	Stations []StationID `json:"stations"`
	Segments []Segment   `json:"segments"`
	Trains   []TrainID   `json:"trains"`
	Bridges  []Bridge    `json:"bridges"`
}

// Empty reports whether the line is too short to carry trains
func (l *Line) Empty() bool {
	return len(l.Stations) < 2
}

// IndexOf returns the position of a station on the line, or -1
func (l *Line) IndexOf(id StationID) int {
	for i, s := range l.Stations {
		if s == id {
			return i
		}
	}
	return -1
}

// TrainState is the train state machine
type TrainState string

const (
	TrainMoving  TrainState = "moving"
	TrainStopped TrainState = "stopped"
)

// Train shuttles back and forth along its line.
type Train struct {
	ID         TrainID     `json:"id"`
	Line       LineID      `json:"line"`
	Segment    int         `json:"segment"`
	Position   float64     `json:"position"` // fraction of Segment, 0 at its From end
	Direction  int         `json:"direction"`
	Speed      float64     `json:"speed"` // px per ms
	Capacity   int         `json:"capacity"`
	Carriages  int         `json:"carriages"`
	Passengers []Passenger `json:"passengers"`
	State      TrainState  `json:"state"`
	Dwell      float64     `json:"dwell"`   // remaining ms while stopped
	Station    StationID   `json:"station"` // last station arrived at
}

// Progress addresses the train along the whole station sequence: 0 is the
// first station, len(stations)-1 the last.
func (t *Train) Progress() float64 {
	return float64(t.Segment) + t.Position
}

// TotalCapacity is the base capacity plus carriage bonus
func (t *Train) TotalCapacity(carriageCapacity int) int {
	return t.Capacity + t.Carriages*carriageCapacity
}

// UpgradeKind is a reward offered at the start of each week
type UpgradeKind string

const (
	UpgradeLine        UpgradeKind = "line"
	UpgradeTrain       UpgradeKind = "train"
	UpgradeCarriage    UpgradeKind = "carriage"
	UpgradeBridge      UpgradeKind = "bridge"
	UpgradeInterchange UpgradeKind = "interchange"
)

// AllUpgrades lists every upgrade in offer order
var AllUpgrades = []UpgradeKind{UpgradeLine, UpgradeTrain, UpgradeCarriage, UpgradeBridge, UpgradeInterchange}

// InteractionMode is the input gesture the player is in
type InteractionMode string

const (
	InteractionIdle    InteractionMode = "idle"
	InteractionDrawing InteractionMode = "drawing"
)

// Interaction replaces loose drawing/selection fields with one explicit state.
// Line and AtStart are only meaningful while drawing.
type Interaction struct {
	Mode    InteractionMode `json:"mode"`
	Line    LineID          `json:"line"`
	AtStart bool            `json:"at_start"`
}

// Resources are the player's unspent upgrades
type Resources struct {
	Trains       int `json:"trains"`
	Carriages    int `json:"carriages"`
	Bridges      int `json:"bridges"`
	Interchanges int `json:"interchanges"`
}

// GameState is the complete simulation context. It holds no pointers between
// entities so it can be persisted and restored as plain JSON.
type GameState struct {
	CityID  string `json:"city_id"`
	Variant string `json:"variant"`

	Stations []Station `json:"stations"`
	Lines    []Line    `json:"lines"`
	Trains   []Train   `json:"trains"`

	Score     int `json:"score"`
	Spawned   int `json:"spawned"`
	Delivered int `json:"delivered"`

	Week        int     `json:"week"`
	Day         int     `json:"day"`
	DayProgress float64 `json:"day_progress"` // ms into the current day
	TimeOfDay   float64 `json:"time_of_day"`  // hours, 6.0 at day start
	Elapsed     float64 `json:"elapsed"`      // simulated ms

	GameSpeed     int       `json:"game_speed"`
	Paused        bool      `json:"paused"`
	GameOver      bool      `json:"game_over"`
	FailedStation StationID `json:"failed_station"`

	Resources       Resources     `json:"resources"`
	BridgesBuilt    int           `json:"bridges_built"`
	PendingUpgrades []UpgradeKind `json:"pending_upgrades,omitempty"`
	Interaction     Interaction   `json:"interaction"`

	NextPassengerID int `json:"next_passenger_id"`
	NextTrainID     int `json:"next_train_id"`
}

// LineColors are assigned to lines in creation order
var LineColors = []string{"#DD2515", "#2581C4", "#35AB52", "#F0AB00", "#00BFFF", "#FFDD55"}
