package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/minimetro/game/config"
	"github.com/wricardo/minimetro/game/engine"
	"github.com/wricardo/minimetro/game/loop"
	"github.com/wricardo/minimetro/game/service"
	"github.com/wricardo/minimetro/transport/websocket"
)

var log = logrus.WithField("module", "api")

// LoopRunner drives sessions in real time
type LoopRunner interface {
	Start(ctx context.Context, sessionID string) error
	Stop(sessionID string) bool
	Running(sessionID string) bool
}

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	runner  LoopRunner
	router  *mux.Router
}

// NewServer creates a new API server. hub and runner may be nil.
func NewServer(gameService service.GameService, hub *websocket.Hub, runner LoopRunner) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		runner:  runner,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Time
	api.HandleFunc("/sessions/{id}/state", s.handleGetSnapshot).Methods("GET")
	api.HandleFunc("/sessions/{id}/tick", s.handleTick).Methods("POST")
	api.HandleFunc("/sessions/{id}/advance", s.handleAdvance).Methods("POST")
	api.HandleFunc("/sessions/{id}/speed", s.handleSetSpeed).Methods("POST")
	api.HandleFunc("/sessions/{id}/pause", s.handleTogglePause).Methods("POST")
	api.HandleFunc("/sessions/{id}/restart", s.handleRestart).Methods("POST")
	api.HandleFunc("/sessions/{id}/run", s.handleRunStatus).Methods("GET")
	api.HandleFunc("/sessions/{id}/run", s.handleRunStart).Methods("POST")
	api.HandleFunc("/sessions/{id}/run", s.handleRunStop).Methods("DELETE")

	// Network editing
	api.HandleFunc("/sessions/{id}/stations/at", s.handleStationAt).Methods("GET")
	api.HandleFunc("/sessions/{id}/stations", s.handlePlaceStation).Methods("POST")
	api.HandleFunc("/sessions/{id}/stations/{station}/interchange", s.handleBuildInterchange).Methods("POST")
	api.HandleFunc("/sessions/{id}/lines", s.handleStartLine).Methods("POST")
	api.HandleFunc("/sessions/{id}/lines/finish", s.handleFinishDrawing).Methods("POST")
	api.HandleFunc("/sessions/{id}/lines/{line}/extend", s.handleExtendLine).Methods("POST")
	api.HandleFunc("/sessions/{id}/lines/{line}/truncate", s.handleTruncateLine).Methods("POST")
	api.HandleFunc("/sessions/{id}/lines/{line}", s.handleClearLine).Methods("DELETE")

	// Rolling stock and upgrades
	api.HandleFunc("/sessions/{id}/lines/{line}/trains", s.handleAddTrain).Methods("POST")
	api.HandleFunc("/sessions/{id}/trains/{train}/carriages", s.handleAddCarriage).Methods("POST")
	api.HandleFunc("/sessions/{id}/upgrade", s.handleChooseUpgrade).Methods("POST")

	// Cities and scores
	api.HandleFunc("/cities", s.handleListCities).Methods("GET")
	api.HandleFunc("/cities", s.handleSaveCity).Methods("POST")
	api.HandleFunc("/cities/{name}", s.handleGetCity).Methods("GET")
	api.HandleFunc("/scores", s.handleTopScores).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service and engine errors onto HTTP statuses
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

var notFoundErrors = []error{
	service.ErrSessionNotFound,
	service.ErrCityNotFound,
	config.ErrConfigNotFound,
	engine.ErrUnknownStation,
	engine.ErrUnknownLine,
	engine.ErrUnknownTrain,
}

var badRequestErrors = []error{
	engine.ErrUnknownVariant,
	engine.ErrInvalidSpeed,
	engine.ErrCutIndex,
	service.ErrInvalidCity,
	service.ErrInvalidDuration,
	config.ErrInvalidConfig,
}

// Game rules refusing a well-formed command
var conflictErrors = []error{
	engine.ErrGameOver,
	engine.ErrStationOnLine,
	engine.ErrNoBridge,
	engine.ErrNoFreeLine,
	engine.ErrLineTooShort,
	engine.ErrNoTrains,
	engine.ErrNoCarriages,
	engine.ErrNoInterchanges,
	engine.ErrAlreadyInterchange,
	engine.ErrNoUpgradePending,
	engine.ErrUpgradeNotOffered,
	engine.ErrUpgradePending,
	engine.ErrAlreadyDrawing,
	engine.ErrNotDrawing,
	engine.ErrInWater,
	engine.ErrStationLimit,
	loop.ErrAlreadyRunning,
}

func statusFor(err error) int {
	matches := func(target error) bool { return errors.Is(err, target) }
	switch {
	case lo.ContainsBy(notFoundErrors, matches):
		return http.StatusNotFound
	case lo.ContainsBy(badRequestErrors, matches):
		return http.StatusBadRequest
	case lo.ContainsBy(conflictErrors, matches):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s id %q", name, mux.Vars(r)[name])
	}
	return v, nil
}

func (s *Server) broadcast(sessionID string, snap engine.Snapshot) {
	if s.hub != nil {
		s.hub.BroadcastSnapshot(sessionID, snap)
	}
}

// respondCommand writes a command result and pushes its snapshot to subscribers
func (s *Server) respondCommand(w http.ResponseWriter, sessionID string, result *service.CommandResult, err error) {
	if err != nil {
		respondServiceError(w, err)
		return
	}
	s.broadcast(sessionID, result.Snapshot)
	respondJSON(w, http.StatusOK, result)
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CityID  string `json:"city_id,omitempty"`
		Variant string `json:"variant,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.service.CreateSession(r.Context(), req.CityID, req.Variant)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort") // "created", "accessed" (default), "score"
	order := query.Get("order") // "asc", "desc" (default)
	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}
	if city := query.Get("city"); city != "" {
		sessions = lo.Filter(sessions, func(info *service.SessionInfo, _ int) bool { return info.CityID == city })
	}
	total := len(sessions)

	compare := func(a, b *service.SessionInfo) int {
		switch sortBy {
		case "created":
			return a.CreatedAt.Compare(b.CreatedAt)
		case "score":
			return a.Snapshot.Score - b.Snapshot.Score
		default:
			return a.LastAccessedAt.Compare(b.LastAccessedAt)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		c := compare(sessions[i], sessions[j])
		if order == "asc" {
			return c < 0
		}
		return c > 0
	})

	if l, err := strconv.Atoi(query.Get("limit")); err == nil && l > 0 && l < len(sessions) {
		sessions = sessions[:l]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if s.runner != nil {
		s.runner.Stop(sessionID)
	}
	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Time Handlers

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.GetSnapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	req := struct {
		DtMS float64 `json:"dt_ms"`
	}{DtMS: float64(service.FrameDuration.Milliseconds())}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	dt := time.Duration(req.DtMS * float64(time.Millisecond))
	result, err := s.service.Tick(r.Context(), sessionID, dt)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, result.Snapshot)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		DurationMS float64 `json:"duration_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	d := time.Duration(req.DurationMS * float64(time.Millisecond))
	result, err := s.service.Advance(r.Context(), sessionID, d)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, result.Snapshot)
	log.WithFields(logrus.Fields{
		"session":   sessionID,
		"frames":    result.Frames,
		"delivered": result.Delivered,
		"stop":      result.StopReasonCode,
		"score":     result.Snapshot.Score,
	}).Info("advance")

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Speed *int `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Speed == nil {
		respondError(w, http.StatusBadRequest, "speed is required")
		return
	}

	result, err := s.service.SetGameSpeed(r.Context(), sessionID, *req.Speed)
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	result, err := s.service.TogglePause(r.Context(), sessionID)
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		CityID string `json:"city_id,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.service.Restart(r.Context(), sessionID, req.CityID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, session.Snapshot)
	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	running := s.runner != nil && s.runner.Running(sessionID)
	respondJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "running": running})
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if s.runner == nil {
		respondError(w, http.StatusNotImplemented, "real-time loop is disabled")
		return
	}
	if _, err := s.service.GetSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	// The loop outlives this request
	if err := s.runner.Start(context.WithoutCancel(r.Context()), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{"session_id": sessionID, "running": true})
}

func (s *Server) handleRunStop(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	stopped := s.runner != nil && s.runner.Stop(sessionID)
	respondJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "running": false, "stopped": stopped})
}

// Network Handlers

func (s *Server) handleStationAt(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	x, errX := strconv.ParseFloat(query.Get("x"), 64)
	y, errY := strconv.ParseFloat(query.Get("y"), 64)
	if errX != nil || errY != nil {
		respondError(w, http.StatusBadRequest, "x and y are required numbers")
		return
	}
	touch, _ := strconv.ParseBool(query.Get("touch"))

	hit, err := s.service.StationAt(r.Context(), mux.Vars(r)["id"], engine.Point{X: x, Y: y}, touch)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, hit)
}

func (s *Server) handlePlaceStation(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		X     float64      `json:"x"`
		Y     float64      `json:"y"`
		Shape engine.Shape `json:"shape"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := s.service.PlaceStation(r.Context(), sessionID, engine.Point{X: req.X, Y: req.Y}, req.Shape)
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleBuildInterchange(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	station, err := pathInt(r, "station")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.BuildInterchange(r.Context(), sessionID, engine.StationID(station))
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleStartLine(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Station *engine.StationID `json:"station"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Station == nil {
		respondError(w, http.StatusBadRequest, "station is required")
		return
	}

	result, err := s.service.StartLine(r.Context(), sessionID, *req.Station)
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleFinishDrawing(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	result, err := s.service.FinishDrawing(r.Context(), sessionID)
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleExtendLine(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	line, err := pathInt(r, "line")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Station *engine.StationID `json:"station"`
		AtStart bool              `json:"at_start,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Station == nil {
		respondError(w, http.StatusBadRequest, "station is required")
		return
	}

	result, err := s.service.ExtendLine(r.Context(), sessionID, engine.LineID(line), *req.Station, req.AtStart)
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleTruncateLine(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	line, err := pathInt(r, "line")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		CutIndex *int `json:"cut_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CutIndex == nil {
		respondError(w, http.StatusBadRequest, "cut_index is required")
		return
	}

	result, err := s.service.TruncateLine(r.Context(), sessionID, engine.LineID(line), *req.CutIndex)
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleClearLine(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	line, err := pathInt(r, "line")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.ClearLine(r.Context(), sessionID, engine.LineID(line))
	s.respondCommand(w, sessionID, result, err)
}

// Rolling Stock Handlers

func (s *Server) handleAddTrain(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	line, err := pathInt(r, "line")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.AddTrain(r.Context(), sessionID, engine.LineID(line))
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleAddCarriage(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	train, err := pathInt(r, "train")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.AddCarriage(r.Context(), sessionID, engine.TrainID(train))
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleChooseUpgrade(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Kind engine.UpgradeKind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kind == "" {
		respondError(w, http.StatusBadRequest, "kind is required")
		return
	}

	result, err := s.service.ChooseUpgrade(r.Context(), sessionID, req.Kind)
	s.respondCommand(w, sessionID, result, err)
}

// City Handlers

func (s *Server) handleListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.service.ListCities(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cities)
}

func (s *Server) handleGetCity(w http.ResponseWriter, r *http.Request) {
	city, err := s.service.LoadCity(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, city)
}

func (s *Server) handleSaveCity(w http.ResponseWriter, r *http.Request) {
	var city engine.CityConfig
	if err := json.NewDecoder(r.Body).Decode(&city); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if city.ID == "" {
		respondError(w, http.StatusBadRequest, "City id is required")
		return
	}

	if err := s.service.SaveCity(r.Context(), city.ID, &city); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "City saved successfully",
		"city_id": city.ID,
	})
}

func (s *Server) handleTopScores(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))

	scores, err := s.service.TopScores(r.Context(), query.Get("city"), query.Get("variant"), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(scores),
		"scores": scores,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	if s.hub == nil {
		http.Error(w, "websocket disabled", http.StatusNotImplemented)
		return
	}

	snap, err := s.service.GetSnapshot(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, sessionID, snap)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
