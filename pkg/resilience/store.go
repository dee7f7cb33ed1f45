package resilience

import (
	"context"

	"github.com/scribeflow/resilience/pkg/state"
)

// StateStore is the durable state surface the resilience layer consumes.
// *state.Manager implements it; deployments without persistence get a
// no-op store.
type StateStore interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	ClearCache()
	CleanupSessions() int
	RequestSave()
	SaveNow(ctx context.Context) error
	Info() state.Info
}

type noopStore struct{}

func (noopStore) Get(string) (interface{}, bool) { return nil, false }
func (noopStore) Set(string, interface{})        {}
func (noopStore) ClearCache()                    {}
func (noopStore) CleanupSessions() int           { return 0 }
func (noopStore) RequestSave()                   {}
func (noopStore) SaveNow(context.Context) error  { return nil }
func (noopStore) Info() state.Info               { return state.Info{} }

// NoopStore returns a state store that retains nothing
func NoopStore() StateStore { return noopStore{} }
