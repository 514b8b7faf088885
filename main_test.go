package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"
)

func testOptions(t *testing.T) options {
	t.Helper()
	dir := t.TempDir()
	return options{
		Host:        "localhost",
		Port:        8080,
		ConfigDir:   "configs",
		SessionsDir: filepath.Join(dir, "sessions"),
		ScoresDB:    filepath.Join(dir, "scores.db"),
		FrameMS:     16,
		SessionTTL:  time.Hour,
	}
}

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName != "Mini Metro Server" {
		t.Errorf("Unexpected app name %s", AppName)
	}
}

func TestFlagDefaults(t *testing.T) {
	defaults := map[string]bool{}
	for _, f := range flags() {
		for _, name := range f.Names() {
			defaults[name] = true
		}
	}

	for _, name := range []string{"host", "port", "config-dir", "sessions-dir", "scores-db", "frame-ms", "log-level", "ngrok"} {
		if !defaults[name] {
			t.Errorf("Expected flag %s", name)
		}
	}
}

func TestOptionsFromCommand(t *testing.T) {
	var got options
	cmd := newCommand()
	cmd.Action = func(ctx context.Context, cmd *cli.Command) error {
		got = optionsFrom(cmd)
		return nil
	}
	cmd.Commands = nil

	err := cmd.Run(context.Background(), []string{"minimetro", "--port", "9090", "--frame-ms", "33", "--scores-db", "x.db"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got.Port != 9090 || got.FrameMS != 33 || got.ScoresDB != "x.db" {
		t.Errorf("Unexpected options %+v", got)
	}
	if got.Host != "localhost" || got.ConfigDir != "configs" {
		t.Errorf("Expected defaults, got %+v", got)
	}
	if got.addr() != "localhost:9090" {
		t.Errorf("Unexpected addr %s", got.addr())
	}
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := newCommand()
	cmd.Action = func(ctx context.Context, cmd *cli.Command) error { return nil }
	cmd.Commands = nil

	if err := cmd.Run(context.Background(), []string{"minimetro", "--log-level", "loud"}); err == nil {
		t.Error("Expected error for invalid log level")
	}
}

func TestInitializeServices(t *testing.T) {
	if _, err := os.Stat("configs"); os.IsNotExist(err) {
		t.Skip("Skipping test - configs directory not found")
	}

	svc, err := initializeServices(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	defer svc.Close()

	if svc.game == nil || svc.runner == nil || svc.hub == nil || svc.store == nil {
		t.Fatal("Expected all services to be initialized")
	}
	if svc.runner.Frame() != 16*time.Millisecond {
		t.Errorf("Unexpected frame %v", svc.runner.Frame())
	}
}

func TestInitializeServices_InvalidConfigDir(t *testing.T) {
	opts := testOptions(t)
	opts.ConfigDir = "/non/existent/path"

	if _, err := initializeServices(context.Background(), opts); err == nil {
		t.Error("Expected error for non-existent config directory")
	}
}

func TestPruneOrphaned(t *testing.T) {
	svc, err := initializeServices(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	defer svc.Close()

	ctx := context.Background()
	kept, err := svc.game.CreateSession(ctx, "", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	gone, err := svc.game.CreateSession(ctx, "", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := svc.persistence.Delete(gone.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if pruned := pruneOrphaned(svc); pruned != 1 {
		t.Errorf("Expected 1 pruned session, got %d", pruned)
	}
	if _, err := svc.game.GetSession(ctx, kept.ID); err != nil {
		t.Errorf("Expected %s to survive: %v", kept.ID, err)
	}
}

func TestPruneExpired(t *testing.T) {
	svc, err := initializeServices(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	defer svc.Close()

	if _, err := svc.game.CreateSession(context.Background(), "", ""); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if removed := pruneExpired(svc, time.Hour); removed != 0 {
		t.Errorf("Fresh session should not expire, removed %d", removed)
	}
	if removed := pruneExpired(svc, -time.Second); removed != 1 {
		t.Errorf("Expected 1 expired session, got %d", removed)
	}
}

func TestPruneExpiredStopsUnwatchedLoops(t *testing.T) {
	svc, err := initializeServices(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	defer svc.Close()

	info, err := svc.game.CreateSession(context.Background(), "", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := svc.runner.Start(context.Background(), info.ID); err != nil {
		t.Fatalf("Failed to start loop: %v", err)
	}

	// Nobody is subscribed, so a running loop alone does not keep it alive
	if removed := pruneExpired(svc, -time.Second); removed != 1 {
		t.Errorf("Expected 1 expired session, got %d", removed)
	}
	if svc.runner.Running(info.ID) {
		t.Error("Expected the loop of an expired session to be stopped")
	}
	if n := svc.sessions.Count(); n != 0 {
		t.Errorf("Expected no sessions in memory, got %d", n)
	}
}

func TestRouter(t *testing.T) {
	svc, err := initializeServices(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	defer svc.Close()

	router := newRouter(svc, "http://localhost:8080")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected health 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/mcp", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /mcp, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/mcp", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for tools/list, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "extend_line") {
		t.Errorf("Expected tool list in response, got %s", rec.Body.String())
	}
}
