package state

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scribeflow/resilience/pkg/errors"
	"github.com/scribeflow/resilience/pkg/logging"
)

// Session tracks one document-processing session
type Session struct {
	CreatedAt  time.Time              `json:"created_at"`
	LastActive time.Time              `json:"last_active"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// document is the persisted state file layout
type document struct {
	Sessions  map[string]Session     `json:"sessions"`
	Cache     map[string]interface{} `json:"cache"`
	Metrics   map[string]interface{} `json:"metrics"`
	Values    map[string]interface{} `json:"values"`
	LastSaved *time.Time             `json:"last_saved"`
}

func defaultDocument() document {
	return document{
		Sessions: make(map[string]Session),
		Cache:    make(map[string]interface{}),
		Metrics:  make(map[string]interface{}),
		Values:   make(map[string]interface{}),
	}
}

// Config holds state manager configuration
type Config struct {
	Path             string        `json:"path"`
	AutosaveInterval time.Duration `json:"autosave_interval"`
	SessionMaxAge    time.Duration `json:"session_max_age"`
	ShutdownTimeout  time.Duration `json:"shutdown_timeout"`
}

// DefaultConfig returns the default state manager configuration
func DefaultConfig() Config {
	return Config{
		Path:             "app_state.json",
		AutosaveInterval: 5 * time.Minute,
		SessionMaxAge:    24 * time.Hour,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Info summarizes the persisted state for metrics reporting
type Info struct {
	SessionsCount int        `json:"sessions_count"`
	CacheSize     int        `json:"cache_size"`
	LastSaved     *time.Time `json:"last_saved"`
}

// Manager owns the durable application state. Mutations are served from
// memory; a dedicated writer goroutine performs file saves so callers
// never block on disk. Save requests are coalesced: while one request is
// pending, further requests are absorbed.
type Manager struct {
	config Config
	logger *logging.Logger

	mu        sync.RWMutex
	doc       document
	lastSaved time.Time

	fileMu sync.Mutex

	saveCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	runMu   sync.Mutex
	running bool

	now func() time.Time

	// OnSave, if set, is called after every save attempt with its
	// outcome. Assign it before the writer goroutine starts.
	OnSave func(err error)
}

// NewManager loads state from disk, falling back to an empty default
// state on any load failure. It never returns an error.
func NewManager(config Config, logger *logging.Logger) *Manager {
	if config.Path == "" {
		config.Path = DefaultConfig().Path
	}
	if config.AutosaveInterval <= 0 {
		config.AutosaveInterval = DefaultConfig().AutosaveInterval
	}
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = DefaultConfig().SessionMaxAge
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	m := &Manager{
		config: config,
		logger: logger,
		saveCh: make(chan struct{}, 1),
		now:    time.Now,
	}
	m.doc = m.load()
	m.lastSaved = m.now()

	return m
}

// load reads the state file. Any failure yields a fresh default state.
func (m *Manager) load() document {
	data, err := os.ReadFile(m.config.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Error("Failed to read state file", "path", m.config.Path, "error", err)
		}
		m.logger.Info("Created new default state", "path", m.config.Path)
		return defaultDocument()
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		m.logger.Error("Failed to parse state file", "path", m.config.Path, "error", err)
		m.logger.Info("Created new default state", "path", m.config.Path)
		return defaultDocument()
	}

	// Absent sections unmarshal as nil maps
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]Session)
	}
	if doc.Cache == nil {
		doc.Cache = make(map[string]interface{})
	}
	if doc.Metrics == nil {
		doc.Metrics = make(map[string]interface{})
	}
	if doc.Values == nil {
		doc.Values = make(map[string]interface{})
	}

	m.logger.LogStateEvent(context.Background(), "state_loaded", m.config.Path, logrus.Fields{
		"sessions": len(doc.Sessions),
	})
	return doc
}

// Get returns the value stored under key
func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.doc.Values[key]
	return value, ok
}

// Set stores a value and requests a save when the autosave interval has
// elapsed since the last save
func (m *Manager) Set(key string, value interface{}) {
	m.mu.Lock()
	m.doc.Values[key] = value
	stale := m.staleLocked()
	m.mu.Unlock()

	if stale {
		m.RequestSave()
	}
}

// PutSession creates or replaces a session
func (m *Manager) PutSession(id string, data map[string]interface{}) {
	now := m.now()
	m.mu.Lock()
	m.doc.Sessions[id] = Session{CreatedAt: now, LastActive: now, Data: data}
	stale := m.staleLocked()
	m.mu.Unlock()

	if stale {
		m.RequestSave()
	}
}

// TouchSession refreshes a session's last-active time
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	session, ok := m.doc.Sessions[id]
	if ok {
		session.LastActive = m.now()
		m.doc.Sessions[id] = session
	}
	stale := ok && m.staleLocked()
	m.mu.Unlock()

	if stale {
		m.RequestSave()
	}
	return ok
}

// GetSession returns a copy of the session if present
func (m *Manager) GetSession(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.doc.Sessions[id]
	return session, ok
}

// Sessions returns a snapshot of all sessions keyed by ID
func (m *Manager) Sessions() map[string]Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make(map[string]Session, len(m.doc.Sessions))
	for id, session := range m.doc.Sessions {
		sessions[id] = session
	}
	return sessions
}

// RemoveSession deletes a session and reports whether it existed
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	_, ok := m.doc.Sessions[id]
	if ok {
		delete(m.doc.Sessions, id)
	}
	stale := ok && m.staleLocked()
	m.mu.Unlock()

	if stale {
		m.RequestSave()
	}
	return ok
}

// SessionCount returns the number of tracked sessions
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.doc.Sessions)
}

// CacheGet returns a cached value
func (m *Manager) CacheGet(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.doc.Cache[key]
	return value, ok
}

// CachePut stores a cached value
func (m *Manager) CachePut(key string, value interface{}) {
	m.mu.Lock()
	m.doc.Cache[key] = value
	stale := m.staleLocked()
	m.mu.Unlock()

	if stale {
		m.RequestSave()
	}
}

// ClearCache drops every cached entry
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.doc.Cache = make(map[string]interface{})
	stale := m.staleLocked()
	m.mu.Unlock()

	if stale {
		m.RequestSave()
	}
}

// SetMetric stores a metric value in the persisted metrics section
func (m *Manager) SetMetric(key string, value interface{}) {
	m.mu.Lock()
	m.doc.Metrics[key] = value
	stale := m.staleLocked()
	m.mu.Unlock()

	if stale {
		m.RequestSave()
	}
}

// CleanupSessions removes sessions created before the retention window
// and returns the number removed. Age is measured from creation, not
// last activity.
func (m *Manager) CleanupSessions() int {
	cutoff := m.now().Add(-m.config.SessionMaxAge)

	m.mu.Lock()
	removed := 0
	for id, session := range m.doc.Sessions {
		if session.CreatedAt.Before(cutoff) {
			delete(m.doc.Sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("Cleaned up old sessions", "removed", removed)
	}
	return removed
}

// Info returns a summary of the persisted state
func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{
		SessionsCount: len(m.doc.Sessions),
		CacheSize:     len(m.doc.Cache),
		LastSaved:     m.doc.LastSaved,
	}
}

// staleLocked reports whether the autosave interval has elapsed.
// Callers must hold mu.
func (m *Manager) staleLocked() bool {
	return m.now().Sub(m.lastSaved) > m.config.AutosaveInterval
}

// RequestSave enqueues an asynchronous save. The request never blocks;
// while one is pending, additional requests coalesce into it.
func (m *Manager) RequestSave() {
	select {
	case m.saveCh <- struct{}{}:
	default:
		// a save is already pending
	}
}

// SaveNow writes the state file synchronously, copying the previous file
// to a .bak sibling first. Failures are logged and returned, never fatal.
func (m *Manager) SaveNow(ctx context.Context) (err error) {
	if m.OnSave != nil {
		defer func() { m.OnSave(err) }()
	}

	m.fileMu.Lock()
	defer m.fileMu.Unlock()

	m.mu.Lock()
	now := m.now()
	m.doc.LastSaved = &now
	m.lastSaved = now
	payload, err := json.MarshalIndent(m.doc, "", "  ")
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Failed to encode state", "error", err)
		return errors.NewInternalError("failed to encode state").WithCause(err)
	}

	// Backup before overwrite
	if previous, err := os.ReadFile(m.config.Path); err == nil {
		if err := os.WriteFile(m.config.Path+".bak", previous, 0644); err != nil {
			m.logger.Warn("Failed to write state backup", "path", m.config.Path+".bak", "error", err)
		}
	}

	if err := os.WriteFile(m.config.Path, payload, 0644); err != nil {
		m.logger.Error("Failed to save state", "path", m.config.Path, "error", err)
		return errors.NewInternalError("failed to save state").WithCause(err)
	}

	m.logger.Debug("State saved", "path", m.config.Path)
	return nil
}

// Start launches the writer goroutine consuming save requests
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return errors.NewInternalError("state manager is already running")
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running = true

	go m.writerLoop(ctx)

	return nil
}

// Stop signals the writer goroutine and waits for it to exit. A pending
// save request may be dropped; shutdown sequences perform a final
// synchronous save after stopping the writer.
func (m *Manager) Stop() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return nil
	}

	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}

	select {
	case <-m.doneCh:
	case <-time.After(m.config.ShutdownTimeout):
		return errors.NewTimeoutError("state writer shutdown")
	}

	m.running = false
	return nil
}

func (m *Manager) writerLoop(ctx context.Context) {
	defer close(m.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-m.saveCh:
			if err := m.SaveNow(ctx); err != nil {
				m.logger.Error("Async state save failed", "error", err)
			}
		}
	}
}
