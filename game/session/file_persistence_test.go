package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wricardo/minimetro/game/config"
	"github.com/wricardo/minimetro/game/engine"
	"github.com/wricardo/minimetro/game/service"
)

func newTestPersistence(t *testing.T) (*FilePersistence, *config.Manager) {
	t.Helper()
	configManager, err := config.NewManager("../../configs")
	if err != nil {
		t.Fatalf("Failed to create config manager: %v", err)
	}
	persistence, err := NewFilePersistence(t.TempDir(), configManager)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	return persistence, configManager
}

func newTestSession(t *testing.T, id string, city *engine.CityConfig, variant string) *service.Session {
	t.Helper()
	rules, err := engine.RulesForVariant(variant)
	if err != nil {
		t.Fatalf("Failed to get rules: %v", err)
	}
	eng, err := engine.NewEngine(city, rules, engine.WithSeed(11))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return &service.Session{
		ID:             id,
		Engine:         eng,
		City:           city,
		Variant:        rules.Name,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
}

func TestFilePersistence(t *testing.T) {
	persistence, configManager := newTestPersistence(t)
	paris, err := configManager.LoadConfig("paris")
	if err != nil {
		t.Fatalf("Failed to load paris: %v", err)
	}
	session := newTestSession(t, "test1", paris, engine.VariantMobile)

	t.Run("Save and Load Session", func(t *testing.T) {
		if err := persistence.Save(session); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}
		if !persistence.Exists("test1") {
			t.Error("Session file should exist after save")
		}

		loaded, err := persistence.Load("test1")
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}
		if loaded.ID != session.ID {
			t.Errorf("Expected ID %s, got %s", session.ID, loaded.ID)
		}
		if loaded.City.ID != "paris" {
			t.Errorf("Expected city paris, got %s", loaded.City.ID)
		}
		if loaded.Variant != engine.VariantMobile || loaded.Engine.GetRules().Name != engine.VariantMobile {
			t.Errorf("Expected mobile variant, got %s", loaded.Variant)
		}
		if got, want := len(loaded.Engine.GetState().Stations), len(session.Engine.GetState().Stations); got != want {
			t.Errorf("Expected %d stations, got %d", want, got)
		}
	})

	t.Run("Save State Changes", func(t *testing.T) {
		eng := session.Engine
		rules := eng.GetRules()
		stations := eng.GetState().Stations
		// Two stations on the same bank never need a bridge
		a, b := engine.StationID(-1), engine.StationID(-1)
		for i := range stations {
			for j := i + 1; j < len(stations); j++ {
				if !paris.CrossesWater(stations[i].Pos, stations[j].Pos, rules.CanvasWidth, rules.CanvasHeight, rules.WaterSamples) {
					a, b = stations[i].ID, stations[j].ID
				}
			}
		}
		if a < 0 {
			t.Skip("no dry pair of stations on this map")
		}
		if err := eng.ExtendLine(0, a, false); err != nil {
			t.Fatalf("Failed to extend line: %v", err)
		}
		if err := eng.ExtendLine(0, b, false); err != nil {
			t.Fatalf("Failed to extend line: %v", err)
		}
		for i := 0; i < 100; i++ {
			eng.Tick(16 * time.Millisecond)
		}

		if err := persistence.Save(session); err != nil {
			t.Fatalf("Failed to save updated session: %v", err)
		}
		loaded, err := persistence.Load("test1")
		if err != nil {
			t.Fatalf("Failed to load updated session: %v", err)
		}

		want, got := eng.GetState(), loaded.Engine.GetState()
		if len(got.Lines[0].Stations) != 2 || len(got.Lines[0].Segments) != 1 {
			t.Errorf("Line not persisted correctly: %+v", got.Lines[0])
		}
		if len(got.Trains) != 1 || got.Trains[0].Position != want.Trains[0].Position {
			t.Errorf("Train not persisted correctly")
		}
		if got.Elapsed != want.Elapsed || got.TotalPassengers() != want.TotalPassengers() {
			t.Errorf("Clock or passengers not persisted: elapsed %v/%v", got.Elapsed, want.Elapsed)
		}
	})

	t.Run("List All Sessions", func(t *testing.T) {
		session2 := newTestSession(t, "test2", configManager.GetDefault(), "")
		if err := persistence.Save(session2); err != nil {
			t.Fatalf("Failed to save second session: %v", err)
		}

		sessionIDs, err := persistence.ListAll()
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}

		found := make(map[string]bool)
		for _, id := range sessionIDs {
			found[id] = true
		}
		if len(sessionIDs) != 2 || !found["test1"] || !found["test2"] {
			t.Errorf("Expected test1 and test2, got %v", sessionIDs)
		}
	})

	t.Run("Delete Session", func(t *testing.T) {
		if err := persistence.Delete("test2"); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}
		if persistence.Exists("test2") {
			t.Error("Session should not exist after delete")
		}
		if _, err := persistence.Load("test2"); err != ErrSessionNotFound {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Error Cases", func(t *testing.T) {
		if _, err := persistence.Load("nonexistent"); err == nil {
			t.Error("Should get error when loading non-existent session")
		}
		if err := persistence.Delete("nonexistent"); err == nil {
			t.Error("Should get error when deleting non-existent session")
		}
		if err := persistence.Save(nil); err == nil {
			t.Error("Should get error when saving nil session")
		}
	})

	t.Run("Unknown City", func(t *testing.T) {
		ghost := createTestCity()
		if err := persistence.Save(newTestSession(t, "ghost", ghost, "")); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}
		if _, err := persistence.Load("ghost"); err == nil {
			t.Error("Should not load a session whose city is gone")
		}
	})
}

func TestFilePersistenceFileStructure(t *testing.T) {
	persistence, configManager := newTestPersistence(t)
	session := newTestSession(t, "file_test", configManager.GetDefault(), engine.VariantClassic)

	if err := persistence.Save(session); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	expectedFile := filepath.Join(persistence.sessionsDir, "file_test.json")
	data, err := os.ReadFile(expectedFile)
	if err != nil {
		t.Fatalf("Failed to read session file: %v", err)
	}
	if _, err := os.Stat(expectedFile + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file should be renamed away")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Session file is not valid JSON: %v", err)
	}
	for _, field := range []string{"id", "city_id", "variant", "created_at", "last_accessed_at", "game_state"} {
		if _, ok := fields[field]; !ok {
			t.Errorf("Session file should contain field %s", field)
		}
	}

	var stored PersistedSessionData
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("Failed to decode session file: %v", err)
	}
	if stored.CityID != "london" || stored.Variant != engine.VariantClassic {
		t.Errorf("Unexpected header: city %s variant %s", stored.CityID, stored.Variant)
	}
}
