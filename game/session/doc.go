// Package session provides session management for the Mini Metro simulation server.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - Session lifecycle management
//   - JSON file persistence of the full game state
//   - Session cleanup and expiration
//
// Core Types:
//
// Manager is the main session manager that handles all session operations.
// Each session owns its own engine, built from a city and a rules variant.
// FilePersistence stores one JSON file per session holding the city id, the
// variant and the complete GameState; loading rebuilds the engine from the
// config manager and restores the state.
//
// Session Identifiers:
//
// Sessions use 4-character hex IDs for easy reference. Lookups are
// case-insensitive and generated IDs never collide with live sessions.
//
// Usage:
//
//	persistence, _ := session.NewFilePersistence("sessions", configManager)
//	manager := session.NewManagerWithPersistence(persistence)
//	manager.LoadPersistedSessions()
//
//	sess, err := manager.Create("", configManager.GetDefault(), "desktop")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sess, err = manager.Get(sess.ID)
//	sessions := manager.List()
//
// Cleanup:
//
// Sessions can be explicitly deleted or dropped from memory after a period
// of inactivity with ExpireSessions; their files stay on disk and are
// reloaded on the next Get. A session the ActivityCheck reports as live,
// such as one whose game loop is running with subscribers, never expires.
package session
