// Package engine provides the core simulation of the Mini Metro game.
//
// The engine package implements the game mechanics including:
//   - City maps with rivers, bays and islands, and water-crossing detection
//   - Station placement, passenger spawning and overcrowding
//   - Line editing with bridge accounting and interchange detection
//   - Trains shuttling along lines, boarding and delivering passengers
//   - The day/week clock, spawn-rate curve and weekly upgrades
//
// Core Types:
//
// The Engine interface defines the command and query surface, implemented by
// GameEngine. GameState is the complete simulation context; it holds stations
// and lines in tables indexed by id, so it can be persisted as plain JSON.
// Rules carries every tunable, with presets per game variant, and CityConfig
// describes the static world loaded from JSON files.
//
// Usage:
//
//	city, err := engine.LoadCityConfig("configs/london.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	gameEngine, err := engine.NewEngine(city, engine.DesktopRules())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	line, _ := gameEngine.StartLine(0)
//	_ = gameEngine.ExtendLine(line, 1, false)
//	report := gameEngine.Tick(16 * time.Millisecond)
//	snapshot := gameEngine.Snapshot()
//
// Game Rules:
//
// Passengers appear at stations wanting to reach any station of a given
// shape. Trains pick them up and drop them off, scoring one point per
// delivery. Lines crossing water consume bridges. A station that stays over
// capacity for too long ends the game.
package engine
