package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Path:             filepath.Join(t.TempDir(), "app_state.json"),
		AutosaveInterval: 5 * time.Minute,
		SessionMaxAge:    24 * time.Hour,
		ShutdownTimeout:  time.Second,
	}
}

func TestNewManager_MissingFile(t *testing.T) {
	m := NewManager(testConfig(t), nil)

	info := m.Info()
	assert.Equal(t, 0, info.SessionsCount)
	assert.Equal(t, 0, info.CacheSize)
	assert.Nil(t, info.LastSaved)
}

func TestNewManager_CorruptFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Path, []byte("{not json"), 0644))

	m := NewManager(cfg, nil)

	// Corrupt state falls back to a fresh default, never an error
	assert.Equal(t, 0, m.SessionCount())
	_, ok := m.Get("anything")
	assert.False(t, ok)
}

func TestSaveAndReload(t *testing.T) {
	cfg := testConfig(t)
	m := NewManager(cfg, nil)

	m.Set("health_status", "healthy")
	m.PutSession("session-1", map[string]interface{}{"document": "report.pdf"})
	m.CachePut("summary:doc-1", "cached summary")

	require.NoError(t, m.SaveNow(context.Background()))

	reloaded := NewManager(cfg, nil)
	value, ok := reloaded.Get("health_status")
	require.True(t, ok)
	assert.Equal(t, "healthy", value)
	assert.Equal(t, 1, reloaded.SessionCount())

	cached, ok := reloaded.CacheGet("summary:doc-1")
	require.True(t, ok)
	assert.Equal(t, "cached summary", cached)

	info := reloaded.Info()
	require.NotNil(t, info.LastSaved)
}

func TestSaveNow_WritesBackup(t *testing.T) {
	cfg := testConfig(t)
	m := NewManager(cfg, nil)

	m.Set("generation", 1)
	require.NoError(t, m.SaveNow(context.Background()))

	first, err := os.ReadFile(cfg.Path)
	require.NoError(t, err)

	m.Set("generation", 2)
	require.NoError(t, m.SaveNow(context.Background()))

	backup, err := os.ReadFile(cfg.Path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, first, backup)

	var doc map[string]interface{}
	current, err := os.ReadFile(cfg.Path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(current, &doc))
	values := doc["values"].(map[string]interface{})
	assert.Equal(t, float64(2), values["generation"])
}

func TestSet_TriggersAutosaveWhenStale(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutosaveInterval = time.Minute
	m := NewManager(cfg, nil)

	base := time.Now()
	m.now = func() time.Time { return base }
	m.lastSaved = base

	m.Set("fresh", true)
	assert.Len(t, m.saveCh, 0, "fresh state should not request a save")

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	m.Set("stale", true)
	assert.Len(t, m.saveCh, 1, "stale state should request a save")

	// Further requests coalesce into the pending one
	m.Set("more", true)
	m.RequestSave()
	assert.Len(t, m.saveCh, 1)
}

func TestWriterLoop_DrainsSaveRequests(t *testing.T) {
	cfg := testConfig(t)
	m := NewManager(cfg, nil)

	require.NoError(t, m.Start(context.Background()))
	defer func() {
		require.NoError(t, m.Stop())
	}()

	m.Set("key", "value")
	m.RequestSave()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "writer goroutine should persist the state file")
}

func TestStartStop(t *testing.T) {
	m := NewManager(testConfig(t), nil)

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()), "second start should fail")

	require.NoError(t, m.Stop())
	assert.NoError(t, m.Stop(), "stop is idempotent")
}

func TestCleanupSessions(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionMaxAge = time.Hour
	m := NewManager(cfg, nil)

	base := time.Now()
	m.now = func() time.Time { return base.Add(-2 * time.Hour) }
	m.PutSession("old", nil)

	m.now = func() time.Time { return base }
	m.PutSession("recent", nil)

	// Age is measured from creation time even for recently touched sessions
	require.True(t, m.TouchSession("old"))

	removed := m.CleanupSessions()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.SessionCount())

	_, stillThere := m.doc.Sessions["recent"]
	assert.True(t, stillThere)
}

func TestTouchSession(t *testing.T) {
	m := NewManager(testConfig(t), nil)

	assert.False(t, m.TouchSession("missing"))

	m.PutSession("s1", nil)
	assert.True(t, m.TouchSession("s1"))
}

func TestClearCache(t *testing.T) {
	m := NewManager(testConfig(t), nil)

	m.CachePut("a", 1)
	m.CachePut("b", 2)
	assert.Equal(t, 2, m.Info().CacheSize)

	m.ClearCache()
	assert.Equal(t, 0, m.Info().CacheSize)
}
