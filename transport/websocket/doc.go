// Package websocket streams session snapshots to browser renderers.
//
// A central Hub keeps the subscribers of every session. Each connection gets
// a read pump that keeps it alive and a write pump that sends one JSON frame
// per message:
//
//	{"session_id": "ab12", "event": "snapshot", "snapshot": {...}}
//
// The event is "snapshot" for regular frames and "game_over" for the frame
// that ends the game. Custom events carry a data field instead.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//	defer hub.Close()
//
//	// GET /ws?session=ab12
//	hub.ServeWS(w, r, "ab12", &initialSnapshot)
//
//	// from the game loop, at frame rate
//	hub.BroadcastSnapshot("ab12", snap)
//
// Broadcasting never blocks the caller. Frames for sessions without
// subscribers are skipped, and a client whose queue fills up is dropped.
package websocket
