// Command minimetro starts the Mini Metro simulation server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing the REST API, the WebSocket
//     snapshot stream, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags control host/port, the city and session directories, the highscore
// database, the real-time frame length, logging, and optional ngrok tunneling
// for easy external access during development. Every flag can also be set
// from the environment or a .env file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/minimetro/api"
	"github.com/wricardo/minimetro/game/config"
	"github.com/wricardo/minimetro/game/loop"
	"github.com/wricardo/minimetro/game/scores"
	"github.com/wricardo/minimetro/game/service"
	"github.com/wricardo/minimetro/game/session"
	"github.com/wricardo/minimetro/transport/mcp"
	"github.com/wricardo/minimetro/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Mini Metro Server"
)

var log = logrus.WithField("module", "main")

// options is the resolved command line configuration
type options struct {
	Host        string
	Port        int
	ConfigDir   string
	SessionsDir string
	ScoresDB    string
	FrameMS     int
	SessionTTL  time.Duration
	NgrokAuth   string
	NgrokDomain string
	NgrokOn     bool
}

func (o options) addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// services bundles the long-lived components shared by both modes
type services struct {
	game        service.GameService
	sessions    *session.Manager
	persistence *session.FilePersistence
	store       *scores.Store
	hub         *websocket.Hub
	runner      *loop.Runner
}

// Close stops every game loop and releases the highscore database.
func (s *services) Close() {
	s.runner.StopAll()
	s.hub.Close()
	if err := s.sessions.SaveAllSessions(); err != nil {
		log.WithError(err).Warn("Failed to save sessions on shutdown")
	}
	if err := s.store.Close(); err != nil {
		log.WithError(err).Warn("Failed to close score store")
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
		&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
		&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing city configurations", Sources: cli.EnvVars("CONFIG_DIR")},
		&cli.StringFlag{Name: "sessions-dir", Value: "sessions", Usage: "Directory where sessions are persisted", Sources: cli.EnvVars("SESSIONS_DIR")},
		&cli.StringFlag{Name: "scores-db", Value: "scores.db", Usage: "SQLite file holding the highscore table", Sources: cli.EnvVars("SCORES_DB")},
		&cli.IntFlag{Name: "frame-ms", Value: 16, Usage: "Real-time loop frame length in milliseconds", Sources: cli.EnvVars("FRAME_MS")},
		&cli.DurationFlag{Name: "session-ttl", Value: 24 * time.Hour, Usage: "Remove sessions idle for longer than this", Sources: cli.EnvVars("SESSION_TTL")},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level (trace, debug, info, warn, error)", Sources: cli.EnvVars("LOG_LEVEL")},
		&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
	}
}

// newCommand builds the CLI. Both modes share the root flags.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "minimetro",
		Usage:   AppName,
		Version: Version,
		Flags:   flags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level, err := logrus.ParseLevel(cmd.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("invalid log level: %w", err)
			}
			logrus.SetLevel(level)
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			return ctx, nil
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  runServer,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  runStdioMCP,
			},
		},
	}
}

func optionsFrom(cmd *cli.Command) options {
	return options{
		Host:        cmd.String("host"),
		Port:        int(cmd.Int("port")),
		ConfigDir:   cmd.String("config-dir"),
		SessionsDir: cmd.String("sessions-dir"),
		ScoresDB:    cmd.String("scores-db"),
		FrameMS:     int(cmd.Int("frame-ms")),
		SessionTTL:  cmd.Duration("session-ttl"),
		NgrokOn:     cmd.Bool("ngrok"),
		NgrokAuth:   cmd.String("ngrok-auth"),
		NgrokDomain: cmd.String("ngrok-domain"),
	}
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("Error loading .env file")
		}
	} else {
		log.Info("Loaded environment variables from .env file")
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.WithError(err).Fatal("Exiting")
	}
}

// initializeServices wires the config and session managers, the highscore
// store and the game service, then the hub and the real-time runner that
// drive WebSocket subscribers.
func initializeServices(ctx context.Context, opts options) (*services, error) {
	configManager, err := config.NewManager(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	persistence, err := session.NewFilePersistence(opts.SessionsDir, configManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	sessionManager := session.NewManagerWithPersistence(persistence)
	if err := sessionManager.LoadPersistedSessions(); err != nil {
		log.WithError(err).Warn("Failed to load persisted sessions")
	}

	store, err := scores.Open(ctx, opts.ScoresDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open score store: %w", err)
	}

	gameService := service.NewGameService(sessionManager, configManager, store)

	hub := websocket.NewHub()
	go hub.Run()

	runner := loop.NewRunner(gameService, hub, time.Duration(opts.FrameMS)*time.Millisecond)

	// A game running in real time with someone watching is in play
	sessionManager.SetActivityCheck(func(id string) bool {
		return runner.Running(id) && hub.ClientCount(id) > 0
	})

	log.WithFields(logrus.Fields{
		"configs":  opts.ConfigDir,
		"sessions": sessionManager.Count(),
		"scores":   opts.ScoresDB,
		"frame":    runner.Frame(),
	}).Info("Services initialized")

	return &services{
		game:        gameService,
		sessions:    sessionManager,
		persistence: persistence,
		store:       store,
		hub:         hub,
		runner:      runner,
	}, nil
}

// mcpHandler serves single JSON-RPC messages posted to /mcp.
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// newRouter combines the API server with the /mcp endpoint.
func newRouter(svc *services, baseURL string) http.Handler {
	apiServer := api.NewServer(svc.game, svc.hub, svc.runner)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHandler(mcp.NewClient(baseURL)))
	return mainRouter
}

// runServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled, it also provisions a public tunnel.
func runServer(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	log.WithField("mode", "server").Infof("Starting %s v%s", AppName, Version)

	svc, err := initializeServices(ctx, opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go sessionCleanupRoutine(ctx, svc, opts.SessionTTL)
	go filesystemSyncRoutine(ctx, svc)

	addr := opts.addr()
	mainRouter := newRouter(svc, "http://"+addr)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     mainRouter,
		ReadTimeout: 15 * time.Second,
		// advance can simulate up to ten minutes of frames
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.WithField("addr", addr).Info("HTTP server listening")
		log.Infof("REST API: http://%s/api", addr)
		log.Infof("WebSocket: ws://%s/ws?session=<session_id>", addr)
		log.Infof("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if opts.NgrokOn {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, opts, mainRouter)
		}()
	}

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err = <-serveErr:
		log.WithError(err).Error("Shutting down")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}

	wg.Wait()
	log.Info("Server stopped")
	return err
}

// runNgrok serves the router through an ngrok tunnel until ctx is done.
func runNgrok(ctx context.Context, opts options, handler http.Handler) {
	if opts.NgrokAuth == "" {
		log.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Info("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if opts.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.NgrokDomain))
		log.WithField("domain", opts.NgrokDomain).Info("Using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.NgrokAuth))
	if err != nil {
		log.WithError(err).Error("Failed to start ngrok tunnel")
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			log.WithError(err).Warn("Failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	log.Infof("🚀 Ngrok tunnel established: %s", ngrokURL)
	log.Infof("  REST API (ngrok): %s/api", ngrokURL)
	log.Infof("  WebSocket (ngrok): %s/ws?session=<session_id>", ngrokURL)
	log.Infof("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	go func() {
		<-ctx.Done()
		tun.Close()
	}()

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Debug("Ngrok server stopped")
	}
	log.Info("Ngrok tunnel closed")
}

// sessionCleanupRoutine periodically removes sessions that have not been accessed
// within the retention window, stopping their loops first.
func sessionCleanupRoutine(ctx context.Context, svc *services, maxAge time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneExpired(svc, maxAge)
		}
	}
}

func pruneExpired(svc *services, maxAge time.Duration) int {
	expired := svc.sessions.ExpireSessions(maxAge)
	for _, id := range expired {
		// A frame in flight may have reloaded the session from disk
		if svc.runner.Stop(id) {
			svc.sessions.DeleteFromMemory(id)
		}
	}
	if len(expired) > 0 {
		log.WithField("removed", len(expired)).Info("Cleaned up expired sessions")
	}
	return len(expired)
}

// filesystemSyncRoutine periodically syncs in-memory sessions with filesystem state.
// It removes sessions from memory when their corresponding files are deleted.
func filesystemSyncRoutine(ctx context.Context, svc *services) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneOrphaned(svc)
		}
	}
}

func pruneOrphaned(svc *services) int {
	pruned := 0
	for _, s := range svc.sessions.List() {
		if svc.persistence.Exists(s.ID) {
			continue
		}
		svc.runner.Stop(s.ID)
		if err := svc.sessions.DeleteFromMemory(s.ID); err == nil {
			pruned++
			log.WithField("session", s.ID).Info("Pruned session from memory (file deleted)")
		}
	}

	if pruned > 0 {
		log.WithField("pruned", pruned).Info("Filesystem sync: pruned orphaned sessions")
	}
	return pruned
}

// runStdioMCP runs an MCP stdio server.
// It tries to reuse an external API at the configured address; if unavailable, it
// starts an internal HTTP API bound to a random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)

	// stdout carries the MCP protocol
	logrus.SetOutput(os.Stderr)

	externalURL := "http://" + opts.addr()
	log.WithField("url", externalURL).Info("Checking for external API server")

	baseURL := externalURL
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/api/health")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		log.Info("External API server found, using it for MCP")
	} else {
		log.Info("No external API server found, starting internal HTTP server")

		svc, err := initializeServices(ctx, opts)
		if err != nil {
			return err
		}
		defer svc.Close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		internalAddr := listener.Addr().String()
		baseURL = "http://" + internalAddr

		httpServer := &http.Server{Handler: api.NewServer(svc.game, svc.hub, svc.runner)}
		defer httpServer.Close()

		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("Internal HTTP server error")
			}
		}()

		log.WithField("addr", internalAddr).Info("Internal HTTP server started for MCP stdio")
	}

	mcpClient := mcp.NewClient(baseURL)
	log.WithField("api", baseURL).Info("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
