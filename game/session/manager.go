package session

import (
	"cmp"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/minimetro/game/engine"
	"github.com/wricardo/minimetro/game/service"
)

var log = logrus.WithField("module", "session")

var (
	ErrSessionNotFound      = service.ErrSessionNotFound
	ErrSessionAlreadyExists = errors.New("session already exists")
)

// ActivityCheck reports whether a session is in live play and must not be
// expired, whatever its last access time.
type ActivityCheck func(id string) bool

// Manager owns the metro sessions of a server. Ids are case-insensitive and
// stored lowercased. Sessions evicted from memory keep their files, so Get
// brings them back on demand.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*service.Session
	persistence SessionPersistence
	engineOpts  []engine.Option
	active      ActivityCheck
}

// NewManager creates a memory-only session manager
func NewManager() *Manager {
	return NewManagerWithPersistence(nil)
}

// NewManagerWithPersistence creates a session manager backed by persistence.
// A nil persistence keeps sessions in memory only.
func NewManagerWithPersistence(persistence SessionPersistence) *Manager {
	return &Manager{
		sessions:    make(map[string]*service.Session),
		persistence: persistence,
	}
}

func key(id string) string {
	return strings.ToLower(id)
}

// SetEngineOptions applies opts to every engine the manager creates from now on
func (m *Manager) SetEngineOptions(opts ...engine.Option) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engineOpts = opts
}

// SetActivityCheck installs the check that keeps sessions in live play, such
// as a running game loop with subscribers, from expiring.
func (m *Manager) SetActivityCheck(check ActivityCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = check
}

// Create starts a new game on city with the given variant. An empty id gets
// a random 4-character one.
func (m *Manager) Create(id string, city *engine.CityConfig, variant string) (*service.Session, error) {
	rules, err := engine.RulesForVariant(variant)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case id == "":
		id = m.generateSessionID()
		for m.sessions[key(id)] != nil {
			id = m.generateSessionID()
		}
	case m.sessions[key(id)] != nil:
		return nil, ErrSessionAlreadyExists
	}

	eng, err := engine.NewEngine(city, rules, m.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	now := time.Now()
	sess := &service.Session{
		ID:             id,
		Engine:         eng,
		City:           eng.GetCity(),
		Variant:        rules.Name,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	m.sessions[key(id)] = sess

	m.persist(sess, "create")
	return sess, nil
}

// Get returns a session, loading it from persistence when it was evicted
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	sess := m.sessions[key(id)]
	m.mu.RUnlock()
	if sess != nil {
		return sess, nil
	}

	if m.persistence == nil || !m.persistence.Exists(id) {
		return nil, ErrSessionNotFound
	}
	loaded, err := m.persistence.Load(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have loaded it meanwhile; keep the first copy
	if sess := m.sessions[key(id)]; sess != nil {
		return sess, nil
	}
	m.sessions[key(id)] = loaded
	log.WithFields(logrus.Fields{"session": loaded.ID, "city": loaded.City.ID}).Debug("session restored from disk")
	return loaded, nil
}

// List returns the sessions in memory, oldest first
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	result := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, sess)
	}
	m.mu.RUnlock()

	slices.SortFunc(result, func(a, b *service.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// Delete removes a session from memory and disk
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, inMemory := m.sessions[key(id)]
	delete(m.sessions, key(id))

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}
	if !inMemory {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteFromMemory evicts a session and leaves its file alone
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key(id)]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, key(id))
	return nil
}

// UpdateLastAccessed marks a session as used now and saves it
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.sessions[key(id)]
	if sess == nil {
		return ErrSessionNotFound
	}
	sess.LastAccessedAt = time.Now()
	m.persist(sess, "access")
	return nil
}

// Save writes one session to persistence
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	sess := m.sessions[key(id)]
	m.mu.RUnlock()
	if sess == nil {
		return ErrSessionNotFound
	}
	return m.persistence.Save(sess)
}

// ExpireSessions evicts sessions untouched for maxAge and returns their ids.
// Sessions the activity check reports as live stay, however old. Files are
// kept, so an expired game can still be resumed by id.
func (m *Manager) ExpireSessions(maxAge time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var expired []string
	for k, sess := range m.sessions {
		if !sess.LastAccessedAt.Before(cutoff) {
			continue
		}
		if m.active != nil && m.active(sess.ID) {
			continue
		}
		delete(m.sessions, k)
		expired = append(expired, sess.ID)
		log.WithFields(logrus.Fields{
			"session": sess.ID,
			"idle":    time.Since(sess.LastAccessedAt).Round(time.Second),
		}).Debug("session expired")
	}
	slices.Sort(expired)
	return expired
}

// CleanupExpiredSessions evicts idle sessions and returns how many went
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	return len(m.ExpireSessions(maxAge))
}

// Count returns the number of sessions in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateSessionID returns 4 random hex characters
func (m *Manager) generateSessionID() string {
	b := make([]byte, 2)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// persist saves sess when persistence is configured. Failures are logged:
// the in-memory game stays authoritative.
func (m *Manager) persist(sess *service.Session, reason string) {
	if m.persistence == nil {
		return
	}
	if err := m.persistence.Save(sess); err != nil {
		log.WithError(err).WithFields(logrus.Fields{"session": sess.ID, "reason": reason}).Warn("failed to persist session")
	}
}

// LoadPersistedSessions loads every saved session that is not in memory yet
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		if _, ok := m.sessions[key(id)]; ok {
			continue
		}
		sess, err := m.persistence.Load(id)
		if err != nil {
			log.WithError(err).WithField("session", id).Warn("failed to load persisted session")
			continue
		}
		m.sessions[key(id)] = sess
		loaded++
	}

	if loaded > 0 {
		log.WithField("count", loaded).Info("loaded persisted sessions")
	}
	return nil
}

// SaveAllSessions writes every session in memory to persistence
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	failed := 0
	for _, sess := range m.List() {
		if err := m.persistence.Save(sess); err != nil {
			log.WithError(err).WithField("session", sess.ID).Warn("failed to save session")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to save %d sessions", failed)
	}
	return nil
}
