// Package mcp exposes the Mini Metro REST API as Model Context Protocol tools.
//
// The Client is a thin proxy: every tool call becomes one HTTP request against
// a running server, and the JSON answer is rendered as text an agent can read.
// It holds no game state of its own.
//
// MCP Tools:
//   - create_session, list_sessions, get_session: session management
//   - game_state: stations, lines, trains, resources and the clock
//   - advance, set_speed, toggle_pause, restart: time control
//   - place_station, start_line, extend_line, truncate_line, clear_line,
//     finish_drawing: network editing
//   - add_train, add_carriage, build_interchange, choose_upgrade: rolling stock
//     and weekly upgrades
//   - list_cities, top_scores, game_instructions
//
// Rule refusals from the server (no bridge, no free line, upgrade pending)
// come back as tool errors carrying the server's message.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//
//	// stdio
//	server.ServeStdio(client.GetMCPServer())
//
//	// HTTP
//	http.Handle("/mcp", server.NewStreamableHTTPServer(client.GetMCPServer()))
package mcp
