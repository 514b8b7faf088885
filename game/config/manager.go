package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/minimetro/game/engine"
	"github.com/wricardo/minimetro/game/service"
)

var log = logrus.WithField("module", "config")

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DefaultCityID is the city used when a session names none
const DefaultCityID = "london"

// Manager handles city configuration loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.CityConfig
	configs       map[string]*engine.CityConfig
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.CityConfig),
	}

	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	return m, nil
}

// LoadConfig loads a city by name. The file name is the city id.
func (m *Manager) LoadConfig(name string) (*engine.CityConfig, error) {
	name = strings.TrimSuffix(name, ".json")

	m.mu.RLock()
	// Check cache first
	if city, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return city, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if city, exists := m.configs[name]; exists {
		return city, nil
	}

	data, err := os.ReadFile(m.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var city engine.CityConfig
	if err := json.Unmarshal(data, &city); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, name, err)
	}
	city.ID = name

	if err := engine.ValidateCityConfig(&city); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	m.configs[name] = &city
	return &city, nil
}

// ListConfigs returns information about all valid cities, sorted by id
func (m *Manager) ListConfigs() ([]*service.CityInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var cities []*service.CityInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".json")
		city, err := m.LoadConfig(name)
		if err != nil {
			log.WithError(err).WithField("file", entry.Name()).Debug("skipping invalid city")
			continue
		}

		cities = append(cities, &service.CityInfo{
			Filename:       entry.Name(),
			CityID:         name,
			Name:           city.Name,
			Subtitle:       city.Subtitle,
			Rivers:         len(city.Rivers),
			InitialBridges: city.InitialBridges,
			BridgesPerWeek: city.BridgesPerWeek,
		})
	}

	sort.Slice(cities, func(i, j int) bool { return cities[i].CityID < cities[j].CityID })
	return cities, nil
}

// GetDefault returns the default city
func (m *Manager) GetDefault() *engine.CityConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// SetDefault sets the default city by name
func (m *Manager) SetDefault(name string) error {
	city, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = city
	return nil
}

// RefreshCache drops every cached city and reloads the default from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*engine.CityConfig)
	m.mu.Unlock()

	return m.loadDefaultConfig()
}

// loadDefaultConfig picks london, else the first valid city, else the dry
// built-in map
func (m *Manager) loadDefaultConfig() error {
	city, err := m.LoadConfig(DefaultCityID)
	if err != nil {
		cities, listErr := m.ListConfigs()
		if listErr != nil || len(cities) == 0 {
			log.WithField("dir", m.configDir).Warn("no valid city configs, using built-in map")
			city = engine.DefaultCity()
		} else if city, err = m.LoadConfig(cities[0].CityID); err != nil {
			city = engine.DefaultCity()
		}
	}

	m.mu.Lock()
	m.defaultConfig = city
	m.mu.Unlock()
	return nil
}

// SaveConfig validates a city and writes it to disk under name
func (m *Manager) SaveConfig(name string, city *engine.CityConfig) error {
	name = strings.TrimSuffix(name, ".json")
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: bad city name %q", ErrInvalidConfig, name)
	}

	saved := *city
	saved.ID = name
	if err := engine.ValidateCityConfig(&saved); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	data, err := json.MarshalIndent(&saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.path(name), data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[name] = &saved
	m.mu.Unlock()

	return nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.configDir, name+".json")
}
