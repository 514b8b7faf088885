// Command validate checks the city JSON files in the configs directory. It checks:
//   - JSON structure, unknown fields and required fields
//   - The city id matches the file name
//   - Rivers, islands and bay corners lie inside the unit square
//   - Every spawn zone has dry land to place stations on
//   - Every variant can place its full set of opening stations
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/minimetro/game/engine"
)

// openingSeeds are the seeds used to check opening station placement
var openingSeeds = []uint64{1, 2, 3}

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) info(format string, args ...interface{}) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, args...))
}

// validateConfig loads and validates a single city file.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	var city engine.CityConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&city); err != nil {
		result.fail("Invalid JSON: %v", err)
		return result
	}

	id := strings.TrimSuffix(result.File, filepath.Ext(result.File))
	if city.ID == "" {
		city.ID = id
	} else if city.ID != id {
		result.fail("id %q does not match file name %q", city.ID, id)
	}

	if err := engine.ValidateCityConfig(&city); err != nil {
		result.fail("%v", err)
		return result
	}

	validateGeometry(&city, &result)

	// Placement checks only make sense on a well-formed map
	if result.Valid {
		validateLand(&city, &result)
	}
	if result.Valid {
		validatePlacement(&city, &result)
	}

	if result.Valid {
		result.info("Name: %s", city.Name)
		result.info("Rivers: %d, Islands: %d, Bays: %d", len(city.Rivers), len(city.Islands), len(city.Bays))
		result.info("Spawn zones: %d", len(city.SpawnZones))
		result.info("Bridges: %d + %g/week", city.InitialBridges, city.BridgesPerWeek)
	}

	return result
}

func inside(v float64) bool {
	return v >= 0 && v <= 1
}

// validateGeometry checks that water features are in normalized city space.
func validateGeometry(city *engine.CityConfig, result *ValidationResult) {
	for _, r := range city.Rivers {
		for i, p := range r.Points {
			if !inside(p.X) || !inside(p.Y) {
				result.fail("River %s point %d (%.2f,%.2f) is outside [0,1]", r.Name, i, p.X, p.Y)
			}
		}
	}
	for _, is := range city.Islands {
		if !inside(is.X) || !inside(is.Y) {
			result.fail("Island %s centre (%.2f,%.2f) is outside [0,1]", is.Name, is.X, is.Y)
		}
	}
	for i, b := range city.Bays {
		// bays may run off the canvas edge
		if !inside(b.X) || !inside(b.Y) {
			result.fail("Bay %d (%s) corner (%.2f,%.2f) is outside [0,1]", i, b.Name, b.X, b.Y)
		}
	}

	names := lo.FindDuplicates(lo.Map(city.SpawnZones, func(z engine.SpawnZone, _ int) string { return z.Name }))
	for _, name := range names {
		result.fail("Duplicate spawn zone name: %s", name)
	}
}

// validateLand samples every spawn zone and requires some dry land in each.
func validateLand(city *engine.CityConfig, result *ValidationResult) {
	const grid = 10
	rules := engine.DesktopRules()

	for _, z := range city.SpawnZones {
		dry := 0
		for i := 0; i < grid; i++ {
			for j := 0; j < grid; j++ {
				p := engine.Point{
					X: (z.X + (float64(i)+0.5)/grid*z.W) * rules.CanvasWidth,
					Y: (z.Y + (float64(j)+0.5)/grid*z.H) * rules.CanvasHeight,
				}
				if !city.IsInWater(p, rules.CanvasWidth, rules.CanvasHeight) {
					dry++
				}
			}
		}
		if dry == 0 {
			result.fail("Spawn zone %s is entirely water", z.Name)
		}
	}
}

// validatePlacement starts a game per variant and seed and requires the full
// set of opening stations to fit on land.
func validatePlacement(city *engine.CityConfig, result *ValidationResult) {
	for _, variant := range engine.Variants() {
		rules, err := engine.RulesForVariant(variant)
		if err != nil {
			result.fail("%v", err)
			continue
		}
		for _, seed := range openingSeeds {
			e, err := engine.NewEngine(city, rules, engine.WithSeed(seed))
			if err != nil {
				result.fail("%s: %v", variant, err)
				break
			}
			if got := len(e.Snapshot().Stations); got < rules.StationCount {
				result.fail("%s (seed %d): only %d/%d opening stations could be placed", variant, seed, got, rules.StationCount)
				break
			}
		}
	}
	if result.Valid {
		result.info("Placement: opening stations fit for %s", strings.Join(engine.Variants(), ", "))
	}
}

// validateDir validates every *.json file in dir and prints a concise
// report. It returns false when any file is invalid.
func validateDir(dir string, w io.Writer) (bool, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return false, fmt.Errorf("error finding config files: %w", err)
	}
	if len(files) == 0 {
		return false, fmt.Errorf("no city files in %s", dir)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, info := range result.Errors {
				fmt.Fprintln(w, "  "+info)
			}
		} else {
			fmt.Fprintln(w, "❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Fprintln(w, "  ❌ "+err)
				}
			}
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All cities are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some cities have errors")
	}
	return allValid, nil
}

func main() {
	cmd := &cli.Command{
		Name:      "validate",
		Usage:     "Validate city configuration files",
		ArgsUsage: "[config-dir]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := "../configs"
			if cmd.Args().Present() {
				dir = cmd.Args().First()
			}
			ok, err := validateDir(dir, os.Stdout)
			if err != nil {
				return err
			}
			if !ok {
				return cli.Exit("", 1)
			}
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
