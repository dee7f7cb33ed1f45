package resilience

import (
	"context"
	"fmt"
	"sync"

	"github.com/scribeflow/resilience/pkg/logging"
)

type shutdownHandler struct {
	name string
	fn   func(ctx context.Context) error
}

// Shutdown runs registered handlers in registration order exactly once,
// then saves the final state. Handler failures are logged and never
// stop the sequence. Signal wiring lives in the composition root, not
// here.
type Shutdown struct {
	store  StateStore
	logger *logging.Logger

	mu         sync.Mutex
	handlers   []shutdownHandler
	inProgress bool
}

// NewShutdown creates a shutdown coordinator saving final state to the
// given store
func NewShutdown(store StateStore) *Shutdown {
	if store == nil {
		store = NoopStore()
	}
	return &Shutdown{
		store:  store,
		logger: logging.GetLogger(),
	}
}

// OnShutdown registers a handler. Handlers run in registration order.
func (s *Shutdown) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	s.handlers = append(s.handlers, shutdownHandler{name: name, fn: fn})
	s.mu.Unlock()

	s.logger.Debug("Registered shutdown handler", "handler", name)
}

// InProgress reports whether shutdown has begun
func (s *Shutdown) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

// Shutdown executes the shutdown sequence. The first call wins;
// subsequent calls return immediately.
func (s *Shutdown) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		return
	}
	s.inProgress = true
	handlers := make([]shutdownHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	s.logger.Info("Starting graceful shutdown...")

	for _, handler := range handlers {
		s.runHandler(ctx, handler)
	}

	if err := s.store.SaveNow(ctx); err != nil {
		s.logger.Error("Failed to save final state", "error", err.Error())
	} else {
		s.logger.Info("Final state saved successfully")
	}

	s.logger.Info("Graceful shutdown completed")
}

func (s *Shutdown) runHandler(ctx context.Context, handler shutdownHandler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Shutdown handler panicked",
				"handler", handler.name,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()

	if err := handler.fn(ctx); err != nil {
		s.logger.Error("Shutdown handler failed",
			"handler", handler.name,
			"error", err.Error(),
		)
		return
	}

	s.logger.Info("Executed shutdown handler", "handler", handler.name)
}
