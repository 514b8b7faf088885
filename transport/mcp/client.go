package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"

	"github.com/wricardo/minimetro/game/engine"
	"github.com/wricardo/minimetro/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// advance may simulate up to ten minutes of frames
			Timeout: 60 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Mini Metro",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Mini Metro - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Connect stations with metro lines so trains deliver passengers to a station of
the shape they want. Every delivery scores a point. The game ends when a
station stays overcrowded too long.

TYPICAL FLOW:
1. create_session (optionally pick a city and variant)
2. game_state to see stations, lines and resources
3. start_line / extend_line / finish_drawing to build lines
4. advance to let time pass, then react to overcrowding
5. choose_upgrade whenever a weekly offer pauses the game

Call game_instructions for the complete rules.

NOTE: The 'intent' parameter on extend_line and advance serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func sessionProp() map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": "Session ID"}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func intentProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Brief explanation of the intent behind this action (serves as a rubber duck to help explain your reasoning)",
	}
}

// sessionTool declares a tool whose only argument is the session
func sessionTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProp()},
			Required:   []string{"session_id"},
		},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session on a city",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"city_id": map[string]interface{}{
					"type":        "string",
					"description": "City to play (optional, see list_cities)",
				},
				"variant": map[string]interface{}{
					"type":        "string",
					"enum":        engine.Variants(),
					"description": "Rule set (optional, desktop by default)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(sessionTool("get_session", "Get details of a specific session"), c.handleGetSession)
	c.mcpServer.AddTool(sessionTool("game_state", "Get stations, lines, trains, resources and the clock"), c.handleGameState)
	c.mcpServer.AddTool(sessionTool("toggle_pause", "Pause or resume the simulation"), c.handleTogglePause)
	c.mcpServer.AddTool(sessionTool("finish_drawing", "Stop drawing the current line"), c.handleFinishDrawing)

	// Time
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "advance",
		Description: "Let time pass in 16ms frames. Stops early on game over, a pending upgrade, pause or speed 0.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"seconds": map[string]interface{}{
					"type":        "number",
					"description": "Wall-clock seconds to simulate (max 600). One game day is 20 seconds at speed 1.",
				},
				"intent": intentProp(),
			},
			Required: []string{"session_id", "seconds"},
		},
	}, c.handleAdvance)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "set_speed",
		Description: "Set the game speed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"speed": map[string]interface{}{
					"type":        "integer",
					"enum":        []int{0, 1, 2},
					"description": "0 freezes, 1 is normal, 2 is fast",
				},
			},
			Required: []string{"session_id", "speed"},
		},
	}, c.handleSetSpeed)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "restart",
		Description: "Start a fresh game in the same session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"city_id": map[string]interface{}{
					"type":        "string",
					"description": "Switch to another city (optional)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleRestart)

	// Network editing
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "place_station",
		Description: "Place a station by hand at canvas coordinates",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"x":          map[string]interface{}{"type": "number", "description": "Canvas X in pixels"},
				"y":          map[string]interface{}{"type": "number", "description": "Canvas Y in pixels"},
				"shape": map[string]interface{}{
					"type":        "string",
					"enum":        shapeNames(),
					"description": "Station shape",
				},
			},
			Required: []string{"session_id", "x", "y", "shape"},
		},
	}, c.handlePlaceStation)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_line",
		Description: "Start drawing a new line at a station, or resume an existing line at one of its ends",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"station":    intProp("Station ID"),
			},
			Required: []string{"session_id", "station"},
		},
	}, c.handleStartLine)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "extend_line",
		Description: "Append a station to a line. Crossing water spends a bridge.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"line":       intProp("Line ID"),
				"station":    intProp("Station ID to add"),
				"at_start": map[string]interface{}{
					"type":        "boolean",
					"description": "Prepend instead of append",
				},
				"intent": intentProp(),
			},
			Required: []string{"session_id", "line", "station"},
		},
	}, c.handleExtendLine)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "truncate_line",
		Description: "Cut a line at a station index. Index 0 removes the head station, otherwise everything after the index goes.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"line":       intProp("Line ID"),
				"cut_index":  intProp("Position in the line's station list"),
			},
			Required: []string{"session_id", "line", "cut_index"},
		},
	}, c.handleTruncateLine)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "clear_line",
		Description: "Remove a line entirely, returning its trains and refunding its bridges",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"line":       intProp("Line ID"),
			},
			Required: []string{"session_id", "line"},
		},
	}, c.handleClearLine)

	// Rolling stock and upgrades
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "add_train",
		Description: "Put a spare train on a line",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"line":       intProp("Line ID"),
			},
			Required: []string{"session_id", "line"},
		},
	}, c.handleAddTrain)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "add_carriage",
		Description: "Attach a spare carriage to a train for more capacity",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"train":      intProp("Train ID"),
			},
			Required: []string{"session_id", "train"},
		},
	}, c.handleAddCarriage)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "build_interchange",
		Description: "Upgrade a station to an interchange: more capacity and faster boarding",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"station":    intProp("Station ID"),
			},
			Required: []string{"session_id", "station"},
		},
	}, c.handleBuildInterchange)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "choose_upgrade",
		Description: "Pick one of the weekly upgrade offers; this resumes the game",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"kind": map[string]interface{}{
					"type":        "string",
					"enum":        lo.Map(engine.AllUpgrades, func(k engine.UpgradeKind, _ int) string { return string(k) }),
					"description": "Upgrade to take, must be one of the pending offers",
				},
			},
			Required: []string{"session_id", "kind"},
		},
	}, c.handleChooseUpgrade)

	// Cities and scores
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_cities",
		Description: "List available cities",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListCities)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "top_scores",
		Description: "Show the highscore table",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"city_id": map[string]interface{}{"type": "string", "description": "Filter by city (optional)"},
				"variant": map[string]interface{}{"type": "string", "description": "Filter by variant (optional)"},
				"limit":   intProp("Number of entries, 10 by default"),
			},
		},
	}, c.handleTopScores)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the complete rules of the game",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg reads a required integer; JSON numbers arrive as float64
func intArg(args map[string]interface{}, key string) (int, error) {
	switch v := args[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s is required", key)
	}
}

func floatArg(args map[string]interface{}, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s is required", key)
	}
}

func sessionPath(args map[string]interface{}, suffix string) string {
	return "/api/sessions/" + url.PathEscape(stringArg(args, "session_id")) + suffix
}

// command posts to a session endpoint and formats the CommandResult
func (c *Client) command(ctx context.Context, method, path string, body interface{}, what string) (*mcp.CallToolResult, error) {
	var result service.CommandResult
	if err := c.apiCall(ctx, method, path, body, &result); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", what, err)), nil
	}
	return mcp.NewToolResultText(formatCommandResult(what, &result)), nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	body := map[string]string{}
	if city := stringArg(args, "city_id"); city != "" {
		body["city_id"] = city
	}
	if variant := stringArg(args, "variant"); variant != "" {
		body["variant"] = variant
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nCity: %s (%s)\nVariant: %s\n\n%s",
		session.ID, session.CityName, session.CityID, session.Variant, formatSnapshot(&session.Snapshot))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                    `json:"count"`
		Sessions []*service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active sessions: %d\n", response.Count)
	for _, s := range response.Sessions {
		b.WriteString(formatSessionInfo(s))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(args, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session) + "\n" + formatSnapshot(&session.Snapshot)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	var snap engine.Snapshot
	if err := c.apiCall(ctx, "GET", sessionPath(args, "/state"), nil, &snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&snap)), nil
}

func (c *Client) handleAdvance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	seconds, err := floatArg(args, "seconds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result service.AdvanceResult
	body := map[string]float64{"duration_ms": seconds * 1000}
	if err := c.apiCall(ctx, "POST", sessionPath(args, "/advance"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatAdvanceResult(&result)), nil
}

func (c *Client) handleSetSpeed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	speed, err := intArg(args, "speed")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return c.command(ctx, "POST", sessionPath(args, "/speed"), map[string]int{"speed": speed}, "Set speed")
}

func (c *Client) handleTogglePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.command(ctx, "POST", sessionPath(arguments(request), "/pause"), nil, "Toggle pause")
}

func (c *Client) handleRestart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	body := map[string]string{}
	if city := stringArg(args, "city_id"); city != "" {
		body["city_id"] = city
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", sessionPath(args, "/restart"), body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("Restarted.\n\n" + formatSnapshot(&session.Snapshot)), nil
}

func (c *Client) handlePlaceStation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	x, errX := floatArg(args, "x")
	y, errY := floatArg(args, "y")
	if errX != nil || errY != nil {
		return mcp.NewToolResultError("x and y are required"), nil
	}

	body := map[string]interface{}{"x": x, "y": y, "shape": stringArg(args, "shape")}
	return c.command(ctx, "POST", sessionPath(args, "/stations"), body, "Place station")
}

func (c *Client) handleStartLine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	station, err := intArg(args, "station")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return c.command(ctx, "POST", sessionPath(args, "/lines"), map[string]int{"station": station}, "Start line")
}

func (c *Client) handleExtendLine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	line, err := intArg(args, "line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	station, err := intArg(args, "station")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	atStart, _ := args["at_start"].(bool)

	body := map[string]interface{}{"station": station, "at_start": atStart}
	return c.command(ctx, "POST", sessionPath(args, fmt.Sprintf("/lines/%d/extend", line)), body, "Extend line")
}

func (c *Client) handleTruncateLine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	line, err := intArg(args, "line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cut, err := intArg(args, "cut_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return c.command(ctx, "POST", sessionPath(args, fmt.Sprintf("/lines/%d/truncate", line)), map[string]int{"cut_index": cut}, "Truncate line")
}

func (c *Client) handleClearLine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	line, err := intArg(args, "line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return c.command(ctx, "DELETE", sessionPath(args, fmt.Sprintf("/lines/%d", line)), nil, "Clear line")
}

func (c *Client) handleFinishDrawing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.command(ctx, "POST", sessionPath(arguments(request), "/lines/finish"), nil, "Finish drawing")
}

func (c *Client) handleAddTrain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	line, err := intArg(args, "line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return c.command(ctx, "POST", sessionPath(args, fmt.Sprintf("/lines/%d/trains", line)), nil, "Add train")
}

func (c *Client) handleAddCarriage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	train, err := intArg(args, "train")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return c.command(ctx, "POST", sessionPath(args, fmt.Sprintf("/trains/%d/carriages", train)), nil, "Add carriage")
}

func (c *Client) handleBuildInterchange(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	station, err := intArg(args, "station")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return c.command(ctx, "POST", sessionPath(args, fmt.Sprintf("/stations/%d/interchange", station)), nil, "Build interchange")
}

func (c *Client) handleChooseUpgrade(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	kind := stringArg(args, "kind")
	if kind == "" {
		return mcp.NewToolResultError("kind is required"), nil
	}
	return c.command(ctx, "POST", sessionPath(args, "/upgrade"), map[string]string{"kind": kind}, "Choose upgrade")
}

func (c *Client) handleListCities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var cities []*service.CityInfo
	if err := c.apiCall(ctx, "GET", "/api/cities", nil, &cities); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available cities:\n")
	for _, city := range cities {
		fmt.Fprintf(&b, "- %s: %s", city.CityID, city.Name)
		if city.Subtitle != "" {
			fmt.Fprintf(&b, " (%s)", city.Subtitle)
		}
		fmt.Fprintf(&b, " rivers=%d bridges=%d +%g/week\n", city.Rivers, city.InitialBridges, city.BridgesPerWeek)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleTopScores(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	query := url.Values{}
	if city := stringArg(args, "city_id"); city != "" {
		query.Set("city", city)
	}
	if variant := stringArg(args, "variant"); variant != "" {
		query.Set("variant", variant)
	}
	if limit, err := intArg(args, "limit"); err == nil && limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Scores []service.ScoreEntry `json:"scores"`
	}
	if err := c.apiCall(ctx, "GET", "/api/scores?"+query.Encode(), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatScores(response.Scores)), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `Mini Metro - Complete Instructions

GAME OBJECTIVE:
Design a metro network for a growing city. Each delivered passenger is worth
one point. The game is lost when any station stays overcrowded for 8 seconds.

MAP:
- Coordinates are canvas pixels; the city's rivers and bays are water.
- Stations are shapes: circle, triangle, square and, later, rare shapes.
- New stations appear at the start of each day, and some at random.

PASSENGERS:
- Each passenger wants to reach ANY station of a given shape.
- A station holds 6 waiting passengers (interchanges hold more). Beyond that
  the station starts overcrowding; the timer drains again once it clears.
- Passengers ride until a stop with their shape. At a stop that does not
  serve them they transfer only if it is an interchange whose lines reach
  their shape.

LINES AND TRAINS:
- start_line at a station, then extend_line to add stations at either end.
- A line needs two stations before a train runs on it.
- Drawing across water spends one bridge; clearing a line refunds them.
- Trains shuttle end to end and dwell at every stop to board and alight.
- add_carriage adds capacity to a train; build_interchange speeds boarding.

TIME:
- A day lasts 20 seconds at speed 1; weeks run Monday to Sunday.
- Rush hours raise the spawn rate; nights lower it.
- Every Monday the game pauses and offers two upgrades. choose_upgrade picks
  one and resumes the game.
- advance simulates fixed frames and reports why it stopped early:
  game_over, upgrade_pending, paused or frozen (speed 0).

STRATEGY:
- Connect every shape to every line early; long single lines starve.
- Watch the overcrowding percentage in game_state and add trains or
  carriages where it climbs.
- Save bridges for crossings that join the two banks' shapes.

Good luck running the metro!`

// Formatting

func shapeNames() []string {
	names := make([]string, 0, len(engine.CommonShapes)+len(engine.RareShapes))
	for _, s := range append(append([]engine.Shape{}, engine.CommonShapes...), engine.RareShapes...) {
		names = append(names, s.String())
	}
	return names
}

func formatSessionInfo(session *service.SessionInfo) string {
	return fmt.Sprintf("Session %s: %s (%s) week %d score %d, last active %s\n",
		session.ID, session.CityID, session.Variant, session.Snapshot.Week, session.Snapshot.Score,
		session.LastAccessedAt.Format(time.RFC3339))
}

func formatSnapshot(snap *engine.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s | Week %d, %s %s | Score: %d\n", snap.CityName, snap.Week, snap.DayName, snap.Clock, snap.Score)
	switch {
	case snap.GameOver:
		fmt.Fprintf(&b, "💀 GAME OVER: station %d overcrowded\n", snap.FailedStation)
	case len(snap.PendingUpgrades) > 0:
		fmt.Fprintf(&b, "⏸ Upgrade offer pending: %v (use choose_upgrade)\n", snap.PendingUpgrades)
	case snap.Paused:
		b.WriteString("⏸ Paused\n")
	}
	r := snap.Resources
	fmt.Fprintf(&b, "Speed: %d | Spare: lines=%d trains=%d carriages=%d bridges=%d interchanges=%d\n",
		snap.GameSpeed, r.Lines, r.Trains, r.Carriages, r.Bridges, r.Interchanges)
	fmt.Fprintf(&b, "Passengers: waiting=%d riding=%d delivered=%d\n", snap.Waiting, snap.Riding, snap.Delivered)
	if snap.Interaction.Mode == engine.InteractionDrawing {
		end := "end"
		if snap.Interaction.AtStart {
			end = "start"
		}
		fmt.Fprintf(&b, "Drawing line %d at its %s\n", snap.Interaction.Line, end)
	}

	b.WriteString("\nStations:\n")
	for _, s := range snap.Stations {
		fmt.Fprintf(&b, "  #%d %s at (%.0f,%.0f) waiting %d/%d", s.ID, s.Shape, s.Pos.X, s.Pos.Y, s.Waiting, s.Capacity)
		if s.Overcrowding > 0 {
			fmt.Fprintf(&b, " ⚠ overcrowding %.0f%%", s.Overcrowding*100)
		}
		if s.Interchange {
			b.WriteString(" [interchange]")
		}
		b.WriteString("\n")
	}

	active := lo.Filter(snap.Lines, func(l engine.LineView, _ int) bool { return len(l.Stations) > 0 })
	if len(active) > 0 {
		b.WriteString("\nLines:\n")
		for _, l := range active {
			ids := lo.Map(l.Stations, func(id engine.StationID, _ int) string { return strconv.Itoa(int(id)) })
			fmt.Fprintf(&b, "  Line %d (%s): %s | trains %v | bridges %d\n", l.ID, l.Color, strings.Join(ids, " → "), l.Trains, len(l.Bridges))
		}
	}

	if len(snap.Trains) > 0 {
		b.WriteString("\nTrains:\n")
		for _, t := range snap.Trains {
			fmt.Fprintf(&b, "  Train %d on line %d: %d/%d passengers, %d carriages\n", t.ID, t.Line, t.Passengers, t.Capacity, t.Carriages)
		}
	}

	return b.String()
}

func formatCommandResult(what string, result *service.CommandResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s", what)
	if result.Message != "" {
		fmt.Fprintf(&b, ": %s", result.Message)
	}
	b.WriteString("\n")
	if result.LineID != nil {
		fmt.Fprintf(&b, "Line: %d\n", *result.LineID)
	}
	if result.TrainID != nil {
		fmt.Fprintf(&b, "Train: %d\n", *result.TrainID)
	}
	if result.StationID != nil {
		fmt.Fprintf(&b, "Station: %d\n", *result.StationID)
	}
	b.WriteString("\n")
	b.WriteString(formatSnapshot(&result.Snapshot))
	return b.String()
}

func formatAdvanceResult(result *service.AdvanceResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Advanced %d frames (%.1fs of game time)\n", result.Frames, result.Simulated/1000)
	fmt.Fprintf(&b, "Spawned: %d | Delivered: %d | New stations: %d | New days: %d | New weeks: %d\n",
		result.Spawned, result.Delivered, result.NewStations, result.NewDays, result.NewWeeks)
	if result.StopReasonCode != "" {
		fmt.Fprintf(&b, "Stopped early on frame %d: %s\n", result.StoppedOnFrame, result.StopReasonCode)
	}
	if result.RecordedHighscore {
		b.WriteString("Score recorded in the highscore table\n")
	}
	b.WriteString("\n")
	b.WriteString(formatSnapshot(&result.Snapshot))
	return b.String()
}

func formatScores(scores []service.ScoreEntry) string {
	if len(scores) == 0 {
		return "No scores recorded yet"
	}
	var b strings.Builder
	b.WriteString("Highscores:\n")
	for i, s := range scores {
		fmt.Fprintf(&b, "%d. %d points - %s (%s) week %d, %d stations, %s\n",
			i+1, s.Score, s.CityID, s.Variant, s.Week, s.Stations, s.RecordedAt.Format("2006-01-02"))
	}
	return b.String()
}
