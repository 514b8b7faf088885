// Package api provides the HTTP REST API of the Mini Metro simulation server.
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions                 {city_id, variant} create a session
//   - GET    /api/sessions                 ?sort=accessed|created|score&order=asc|desc&limit=&city=
//   - GET    /api/sessions/{id}            session info with its snapshot
//   - DELETE /api/sessions/{id}            stop its loop and delete it
//
// Time:
//   - GET    /api/sessions/{id}/state      render snapshot
//   - POST   /api/sessions/{id}/tick       {dt_ms} one frame, 16ms by default
//   - POST   /api/sessions/{id}/advance    {duration_ms} fixed frames, stops early
//   - POST   /api/sessions/{id}/speed      {speed} 0, 1 or 2
//   - POST   /api/sessions/{id}/pause      toggle pause
//   - POST   /api/sessions/{id}/restart    {city_id} fresh game, optionally another city
//   - GET|POST|DELETE /api/sessions/{id}/run  real-time loop status, start, stop
//
// Network:
//   - GET    /api/sessions/{id}/stations/at?x=&y=&touch=
//   - POST   /api/sessions/{id}/stations   {x, y, shape}
//   - POST   /api/sessions/{id}/stations/{station}/interchange
//   - POST   /api/sessions/{id}/lines      {station} start or resume drawing
//   - POST   /api/sessions/{id}/lines/finish
//   - POST   /api/sessions/{id}/lines/{line}/extend    {station, at_start}
//   - POST   /api/sessions/{id}/lines/{line}/truncate  {cut_index}
//   - DELETE /api/sessions/{id}/lines/{line}
//   - POST   /api/sessions/{id}/lines/{line}/trains
//   - POST   /api/sessions/{id}/trains/{train}/carriages
//   - POST   /api/sessions/{id}/upgrade    {kind}
//
// Cities and scores:
//   - GET    /api/cities, GET /api/cities/{name}, POST /api/cities
//   - GET    /api/scores?city=&variant=&limit=
//
// WebSocket:
//   - GET    /ws?session={id}   snapshot stream, see package websocket
//
// Commands return a CommandResult with the post-command snapshot, which is
// also pushed to WebSocket subscribers. Errors are JSON objects:
//
//	{"error": "no bridge available to cross water"}
//
// Unknown sessions, cities, stations, lines and trains map to 404. Malformed
// input maps to 400. A well-formed command refused by the game rules maps
// to 409.
package api
