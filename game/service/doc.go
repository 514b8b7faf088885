// Package service provides the business logic layer for the Mini Metro simulation server.
//
// The service package implements:
//   - Multi-session game management
//   - City configuration loading
//   - Player commands and frame stepping
//   - Highscore recording when a game ends
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager manages city configuration loading and validation.
// ScoreStore keeps the results of finished games.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the game engine. Engines are not safe for concurrent use, so the service
// holds one lock around every engine call: a frame from the real-time loop
// and a command from a client never run at the same time.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	gameService := service.NewGameService(sessionMgr, configMgr, nil)
//
//	info, err := gameService.CreateSession(ctx, "london", "desktop")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Draw a line through the first two stations, then let time pass
//	gameService.ExtendLine(ctx, info.ID, 0, 0, false)
//	gameService.ExtendLine(ctx, info.ID, 0, 1, false)
//	result, err := gameService.Advance(ctx, info.ID, time.Minute)
//
// Highscores:
//
// A session that transitions to game over during Tick or Advance is recorded
// exactly once in the ScoreStore. Restarting the session starts a new game
// that can be recorded again.
package service
