package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// River is a water polyline in normalized city space with a width in pixels
type River struct {
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Points []Point `json:"points"`
}

// Island is a rectangle centred on X,Y. Land islands override any water under them.
type Island struct {
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Land   bool    `json:"land"`
}

func (i Island) contains(p Point) bool {
	return p.X >= i.X-i.Width/2 && p.X <= i.X+i.Width/2 &&
		p.Y >= i.Y-i.Height/2 && p.Y <= i.Y+i.Height/2
}

// Bay is an axis-aligned water rectangle anchored at its top-left corner
type Bay struct {
	Name   string  `json:"name,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Bay) contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.Width && p.Y >= b.Y && p.Y <= b.Y+b.Height
}

// SpawnZone is a rectangle where stations may appear. A zero Weight falls back to the zone area.
type SpawnZone struct {
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	W      float64 `json:"w"`
	H      float64 `json:"h"`
	Weight float64 `json:"weight,omitempty"`
}

func (z SpawnZone) weight() float64 {
	if z.Weight > 0 {
		return z.Weight
	}
	return z.W * z.H
}

// Landmark is a labelled point, only used by renderers
type Landmark struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// CityConfig is the static world a session is played on
type CityConfig struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Subtitle       string      `json:"subtitle,omitempty"`
	PrimaryColor   string      `json:"primary_color,omitempty"`
	Rivers         []River     `json:"rivers,omitempty"`
	Islands        []Island    `json:"islands,omitempty"`
	Bays           []Bay       `json:"bays,omitempty"`
	SpawnZones     []SpawnZone `json:"spawn_zones"`
	Landmarks      []Landmark  `json:"landmarks,omitempty"`
	InitialBridges int         `json:"initial_bridges"`
	BridgesPerWeek float64     `json:"bridges_per_week"`
}

// IsInWater classifies a canvas point. Land islands win over rivers and bays.
func (c *CityConfig) IsInWater(p Point, canvasW, canvasH float64) bool {
	rel := normalize(p, canvasW, canvasH)

	for _, island := range c.Islands {
		if island.Land && island.contains(rel) {
			return false
		}
	}

	for _, river := range c.Rivers {
		for i := 0; i+1 < len(river.Points); i++ {
			dist := PointToSegmentDistance(rel, river.Points[i], river.Points[i+1])
			if dist*canvasW < river.Width/2 {
				return true
			}
		}
	}

	for _, bay := range c.Bays {
		if bay.contains(rel) {
			return true
		}
	}
	return false
}

// CrossesWater samples the straight path from a to b at samples+1 evenly
// spaced points, endpoints included, and reports whether any is in water.
func (c *CityConfig) CrossesWater(a, b Point, canvasW, canvasH float64, samples int) bool {
	if samples < 1 {
		samples = 1
	}
	for i := 0; i <= samples; i++ {
		t := float64(i) / float64(samples)
		if c.IsInWater(a.Lerp(b, t), canvasW, canvasH) {
			return true
		}
	}
	return false
}

func inUnitSquare(x, y float64) bool {
	return x >= 0 && x <= 1 && y >= 0 && y <= 1
}

// ValidateCityConfig enforces the load-time contract of a city definition
func ValidateCityConfig(c *CityConfig) error {
	if c == nil {
		return fmt.Errorf("city validation: config is nil")
	}
	if c.ID == "" {
		return fmt.Errorf("city validation: id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("city validation: name is required")
	}
	if len(c.SpawnZones) == 0 {
		return fmt.Errorf("city validation: at least one spawn zone is required")
	}
	for i, z := range c.SpawnZones {
		if z.W <= 0 || z.H <= 0 {
			return fmt.Errorf("city validation: spawn zone %d (%s) must have positive size", i, z.Name)
		}
		if !inUnitSquare(z.X, z.Y) || !inUnitSquare(z.X+z.W, z.Y+z.H) {
			return fmt.Errorf("city validation: spawn zone %d (%s) must lie inside [0,1]x[0,1]", i, z.Name)
		}
		if z.Weight < 0 {
			return fmt.Errorf("city validation: spawn zone %d (%s) has negative weight", i, z.Name)
		}
	}
	for i, r := range c.Rivers {
		if len(r.Points) < 2 {
			return fmt.Errorf("city validation: river %d (%s) needs at least 2 points, got %d", i, r.Name, len(r.Points))
		}
		if r.Width <= 0 {
			return fmt.Errorf("city validation: river %d (%s) must have positive width", i, r.Name)
		}
	}
	for i, is := range c.Islands {
		if is.Width <= 0 || is.Height <= 0 {
			return fmt.Errorf("city validation: island %d (%s) must have positive size", i, is.Name)
		}
	}
	for i, b := range c.Bays {
		if b.Width <= 0 || b.Height <= 0 {
			return fmt.Errorf("city validation: bay %d must have positive size", i)
		}
	}
	if c.InitialBridges < 0 || c.BridgesPerWeek < 0 {
		return fmt.Errorf("city validation: bridge grants must not be negative")
	}
	return nil
}

// LoadCityConfig reads and validates a city definition from a JSON file.
// A missing id is filled from the file name.
func LoadCityConfig(path string) (*CityConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read city config %s: %w", path, err)
	}

	var city CityConfig
	if err := json.Unmarshal(data, &city); err != nil {
		return nil, fmt.Errorf("failed to parse city config %s: %w", path, err)
	}
	if city.ID == "" {
		city.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := ValidateCityConfig(&city); err != nil {
		return nil, fmt.Errorf("invalid city config %s: %w", path, err)
	}
	return &city, nil
}

// DefaultCity is a dry fallback map used when no city is configured
func DefaultCity() *CityConfig {
	return &CityConfig{
		ID:             "custom",
		Name:           "CUSTOM",
		SpawnZones:     []SpawnZone{{Name: "Centre", X: 0.1, Y: 0.1, W: 0.8, H: 0.8}},
		InitialBridges: 3,
		BridgesPerWeek: 1,
	}
}
