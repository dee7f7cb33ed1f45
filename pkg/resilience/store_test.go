package resilience

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scribeflow/resilience/pkg/state"
)

// fakeStore is an in-memory StateStore shared by tests in this package
type fakeStore struct {
	mu           sync.Mutex
	values       map[string]interface{}
	cacheSize    int
	cacheCleared bool
	cleanups     int
	cleanupRet   int
	saveRequests int
	saves        int
	saveErr      error
	info         state.Info
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]interface{})}
}

func (s *fakeStore) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *fakeStore) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *fakeStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheCleared = true
	s.cacheSize = 0
}

func (s *fakeStore) CleanupSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups++
	return s.cleanupRet
}

func (s *fakeStore) RequestSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveRequests++
}

func (s *fakeStore) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return s.saveErr
}

func (s *fakeStore) Info() state.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	info.CacheSize = s.cacheSize
	return info
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *fakeStore) saveRequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRequests
}

func (s *fakeStore) cleanupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}

func TestNoopStore(t *testing.T) {
	store := NoopStore()

	store.Set("key", "value")
	_, ok := store.Get("key")
	assert.False(t, ok)

	assert.Equal(t, 0, store.CleanupSessions())
	assert.NoError(t, store.SaveNow(context.Background()))
	assert.Equal(t, state.Info{}, store.Info())
}
