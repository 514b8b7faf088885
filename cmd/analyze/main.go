// Command analyze prints quick, human-readable heuristics about the city
// files in the configs directory. For each city it measures how much of the
// map is water, flags spawn zones that are mostly water, counts opening
// station pairs that need a bridge, and plays a headless game with a greedy
// bot to see how long the city survives on a fixed seed.
package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/minimetro/game/config"
	"github.com/wricardo/minimetro/game/engine"
)

var log = logrus.WithField("module", "analyze")

const (
	waterGrid = 40 // samples per axis for the coverage estimate
	zoneGrid  = 10
	frame     = 16 * time.Millisecond
)

// CityReport is the outcome of analyzing one city
type CityReport struct {
	CityID          string         `json:"city_id"`
	Name            string         `json:"name"`
	Rivers          int            `json:"rivers"`
	Islands         int            `json:"islands"`
	Bays            int            `json:"bays"`
	Zones           int            `json:"zones"`
	WaterCoverage   float64        `json:"water_coverage"`
	WetZones        []string       `json:"wet_zones,omitempty"`
	InitialStations int            `json:"initial_stations"`
	ShapeMix        map[string]int `json:"shape_mix"`
	BridgePairs     int            `json:"bridge_pairs"`
	Sim             SimResult      `json:"sim"`
}

// SimResult summarizes a headless game
type SimResult struct {
	Survived      bool    `json:"survived"`
	Week          int     `json:"week"`
	Day           int     `json:"day"`
	Score         int     `json:"score"`
	Stations      int     `json:"stations"`
	LinesUsed     int     `json:"lines_used"`
	BridgesBuilt  int     `json:"bridges_built"`
	Upgrades      int     `json:"upgrades"`
	Frames        int     `json:"frames"`
	FailedStation int     `json:"failed_station,omitempty"`
	Elapsed       float64 `json:"elapsed"` // ms of game time
}

func main() {
	cmd := &cli.Command{
		Name:  "analyze",
		Usage: "Analyze city configurations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing city configurations", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringSliceFlag{Name: "city", Usage: "City to analyze (repeatable, all cities by default)"},
			&cli.StringFlag{Name: "variant", Value: engine.VariantDesktop, Usage: "Rule set to simulate"},
			&cli.IntFlag{Name: "seed", Value: 1, Usage: "Random seed for the headless game"},
			&cli.IntFlag{Name: "weeks", Value: 4, Usage: "Stop the headless game after this many weeks"},
			&cli.BoolFlag{Name: "json", Usage: "Print reports as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rules, err := engine.RulesForVariant(cmd.String("variant"))
			if err != nil {
				return err
			}
			reports, err := analyzeDir(cmd.String("config-dir"), cmd.StringSlice("city"), rules, uint64(cmd.Int("seed")), int(cmd.Int("weeks")))
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			for _, r := range reports {
				printReport(os.Stdout, r)
			}
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.WithError(err).Fatal("analysis failed")
	}
}

// analyzeDir analyzes the named cities, or every city in dir when none are named.
func analyzeDir(dir string, cities []string, rules engine.Rules, seed uint64, weeks int) ([]CityReport, error) {
	manager, err := config.NewManager(dir)
	if err != nil {
		return nil, err
	}

	if len(cities) == 0 {
		infos, err := manager.ListConfigs()
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			cities = append(cities, info.CityID)
		}
	}

	reports := make([]CityReport, 0, len(cities))
	for _, id := range cities {
		city, err := manager.LoadConfig(id)
		if err != nil {
			log.WithError(err).WithField("city", id).Warn("skipping city")
			continue
		}
		report, err := analyzeCity(city, rules, seed, weeks)
		if err != nil {
			log.WithError(err).WithField("city", id).Warn("skipping city")
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// analyzeCity measures the static map and plays one headless game.
func analyzeCity(city *engine.CityConfig, rules engine.Rules, seed uint64, weeks int) (CityReport, error) {
	report := CityReport{
		CityID:        city.ID,
		Name:          city.Name,
		Rivers:        len(city.Rivers),
		Islands:       len(city.Islands),
		Bays:          len(city.Bays),
		Zones:         len(city.SpawnZones),
		WaterCoverage: waterCoverage(city, rules),
		WetZones:      wetZones(city, rules),
	}

	e, err := engine.NewEngine(city, rules, engine.WithSeed(seed))
	if err != nil {
		return report, err
	}

	snap := e.Snapshot()
	report.InitialStations = len(snap.Stations)
	report.ShapeMix = lo.CountValuesBy(snap.Stations, func(s engine.StationView) string { return s.Shape.String() })
	report.BridgePairs = bridgePairs(city, rules, snap.Stations)
	report.Sim = simulate(e, weeks)
	return report, nil
}

// waterCoverage is the fraction of canvas sample points that are water
func waterCoverage(city *engine.CityConfig, rules engine.Rules) float64 {
	wet := 0
	for i := 0; i < waterGrid; i++ {
		for j := 0; j < waterGrid; j++ {
			p := engine.Point{
				X: (float64(i) + 0.5) / waterGrid * rules.CanvasWidth,
				Y: (float64(j) + 0.5) / waterGrid * rules.CanvasHeight,
			}
			if city.IsInWater(p, rules.CanvasWidth, rules.CanvasHeight) {
				wet++
			}
		}
	}
	return float64(wet) / float64(waterGrid*waterGrid)
}

// wetZones lists spawn zones where more than half of the area is water;
// stations rarely manage to spawn there.
func wetZones(city *engine.CityConfig, rules engine.Rules) []string {
	var wet []string
	for _, z := range city.SpawnZones {
		water := 0
		for i := 0; i < zoneGrid; i++ {
			for j := 0; j < zoneGrid; j++ {
				p := engine.Point{
					X: (z.X + (float64(i)+0.5)/zoneGrid*z.W) * rules.CanvasWidth,
					Y: (z.Y + (float64(j)+0.5)/zoneGrid*z.H) * rules.CanvasHeight,
				}
				if city.IsInWater(p, rules.CanvasWidth, rules.CanvasHeight) {
					water++
				}
			}
		}
		if water*2 > zoneGrid*zoneGrid {
			wet = append(wet, z.Name)
		}
	}
	return wet
}

func bridgePairs(city *engine.CityConfig, rules engine.Rules, stations []engine.StationView) int {
	n := 0
	for i := range stations {
		for j := i + 1; j < len(stations); j++ {
			if city.CrossesWater(stations[i].Pos, stations[j].Pos, rules.CanvasWidth, rules.CanvasHeight, rules.WaterSamples) {
				n++
			}
		}
	}
	return n
}

// simulate plays fixed frames with the greedy bot until the game ends or
// the week limit is reached.
func simulate(e *engine.GameEngine, weeks int) SimResult {
	var res SimResult
	connect(e)

	for {
		snap := e.Snapshot()
		if snap.GameOver || snap.Week > weeks {
			break
		}
		if len(snap.PendingUpgrades) > 0 {
			if err := e.ChooseUpgrade(pickUpgrade(snap)); err != nil {
				log.WithError(err).Debug("upgrade refused")
				break
			}
			res.Upgrades++
			connect(e)
			continue
		}

		report := e.Tick(frame)
		if !report.Advanced {
			break
		}
		res.Frames++
		if len(report.NewStations) > 0 {
			connect(e)
		}
	}

	snap := e.Snapshot()
	res.Survived = !snap.GameOver
	res.Week = snap.Week
	res.Day = snap.Day
	res.Score = snap.Score
	res.Stations = len(snap.Stations)
	res.BridgesBuilt = snap.BridgesBuilt
	res.Elapsed = snap.Elapsed
	res.LinesUsed = lo.CountBy(snap.Lines, func(l engine.LineView) bool { return len(l.Stations) > 0 })
	if snap.GameOver {
		res.FailedStation = int(snap.FailedStation)
	}
	return res
}

// pickUpgrade prefers more lines, then trains, then whatever is offered first
func pickUpgrade(snap engine.Snapshot) engine.UpgradeKind {
	for _, k := range []engine.UpgradeKind{engine.UpgradeLine, engine.UpgradeTrain, engine.UpgradeCarriage} {
		if slices.Contains(snap.PendingUpgrades, k) {
			return k
		}
	}
	return snap.PendingUpgrades[0]
}

// connect attaches every unconnected station to the closest line end that
// accepts it, opening a new line when there is none.
func connect(e *engine.GameEngine) {
	snap := e.Snapshot()
	connected := map[engine.StationID]bool{}
	for _, l := range snap.Lines {
		for _, id := range l.Stations {
			connected[id] = true
		}
	}

	for _, st := range snap.Stations {
		if connected[st.ID] {
			continue
		}
		if attach(e, st) || open(e, st) {
			connected[st.ID] = true
		}
	}

	// give spare trains to the longest lines
	snap = e.Snapshot()
	lines := lo.Filter(snap.Lines, func(l engine.LineView, _ int) bool { return len(l.Stations) >= 2 })
	slices.SortFunc(lines, func(a, b engine.LineView) int { return len(b.Stations) - len(a.Stations) })
	for i := 0; i < snap.Resources.Trains && len(lines) > 0; i++ {
		if _, err := e.AddTrain(lines[i%len(lines)].ID); err != nil {
			break
		}
	}
}

type lineEnd struct {
	line    engine.LineID
	atStart bool
	dist    float64
}

func attach(e *engine.GameEngine, st engine.StationView) bool {
	snap := e.Snapshot()
	pos := lo.SliceToMap(snap.Stations, func(s engine.StationView) (engine.StationID, engine.Point) { return s.ID, s.Pos })

	var ends []lineEnd
	for _, l := range snap.Lines {
		if len(l.Stations) == 0 {
			continue
		}
		first, last := l.Stations[0], l.Stations[len(l.Stations)-1]
		ends = append(ends, lineEnd{line: l.ID, atStart: true, dist: pos[first].DistanceTo(st.Pos)})
		if last != first {
			ends = append(ends, lineEnd{line: l.ID, atStart: false, dist: pos[last].DistanceTo(st.Pos)})
		}
	}
	slices.SortFunc(ends, func(a, b lineEnd) int { return cmp.Compare(a.dist, b.dist) })

	for _, end := range ends {
		if e.ExtendLine(end.line, st.ID, end.atStart) == nil {
			return true
		}
	}
	return false
}

// open starts a new line from the station to its nearest neighbour.
func open(e *engine.GameEngine, st engine.StationView) bool {
	if e.FreeLines() == 0 {
		return false
	}
	snap := e.Snapshot()
	others := lo.Filter(snap.Stations, func(s engine.StationView, _ int) bool { return s.ID != st.ID })
	if len(others) == 0 {
		return false
	}
	slices.SortFunc(others, func(a, b engine.StationView) int {
		return cmp.Compare(a.Pos.DistanceTo(st.Pos), b.Pos.DistanceTo(st.Pos))
	})

	id, err := e.StartLine(st.ID)
	if err != nil {
		return false
	}
	defer e.FinishDrawing()

	for _, other := range others {
		if e.ExtendLine(id, other.ID, false) == nil {
			return true
		}
	}
	return false
}

func printReport(w io.Writer, r CityReport) {
	fmt.Fprintf(w, "\n=== Analyzing %s ===\n", r.CityID)
	fmt.Fprintf(w, "Name: %s\n", r.Name)
	fmt.Fprintf(w, "Rivers: %d, Islands: %d, Bays: %d, Spawn zones: %d\n", r.Rivers, r.Islands, r.Bays, r.Zones)
	fmt.Fprintf(w, "Water coverage: %.1f%%\n", r.WaterCoverage*100)
	if len(r.WetZones) > 0 {
		fmt.Fprintf(w, "⚠️  WARNING: zones mostly in water: %v\n", r.WetZones)
	} else {
		fmt.Fprintf(w, "✅ All spawn zones are mostly land\n")
	}
	fmt.Fprintf(w, "Opening stations: %d %v\n", r.InitialStations, r.ShapeMix)
	fmt.Fprintf(w, "Opening pairs needing a bridge: %d\n", r.BridgePairs)

	s := r.Sim
	if s.Survived {
		fmt.Fprintf(w, "✅ Greedy bot survived to week %d with %d points (%d stations, %d lines, %d bridges)\n",
			s.Week, s.Score, s.Stations, s.LinesUsed, s.BridgesBuilt)
	} else {
		fmt.Fprintf(w, "⚠️  Greedy bot lost in week %d, %s: station %d overcrowded, %d points\n",
			s.Week, engine.DayName(s.Day), s.FailedStation, s.Score)
	}
}
