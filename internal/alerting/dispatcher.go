// Package alerting delivers alerts raised by the resilience layer to
// operator-facing channels. Delivery is asynchronous: the dispatcher
// enqueues and a worker goroutine fans out to channels, so a slow webhook
// never blocks the code that raised the alert.
package alerting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scribeflow/resilience/pkg/resilience"
)

// Channel delivers a single alert to one destination
type Channel interface {
	Name() string
	Send(ctx context.Context, alert resilience.Alert) error
}

// Config holds dispatcher configuration
type Config struct {
	MinSeverity resilience.AlertSeverity
	QueueSize   int
	SendTimeout time.Duration
}

// DefaultConfig returns default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		MinSeverity: resilience.SeverityWarning,
		QueueSize:   256,
		SendTimeout: 10 * time.Second,
	}
}

// Dispatcher implements resilience.AlertNotifier over a set of channels
type Dispatcher struct {
	config   Config
	channels []Channel
	logger   *zap.Logger

	queue  chan resilience.Alert
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
	dropped int64
}

// NewDispatcher creates a dispatcher. A nil logger falls back to a no-op
// zap logger.
func NewDispatcher(config Config, logger *zap.Logger, channels ...Channel) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		config:   config,
		channels: channels,
		logger:   logger,
		queue:    make(chan resilience.Alert, config.QueueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the dispatch worker
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true

	go d.dispatchLoop()
	d.logger.Info("Alert dispatcher started",
		zap.Int("channels", len(d.channels)),
		zap.String("min_severity", string(d.config.MinSeverity)))
}

// Stop drains the in-flight alert and stops the worker
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	select {
	case <-d.doneCh:
		d.logger.Info("Alert dispatcher stopped", zap.Int64("dropped", d.Dropped()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify enqueues an alert for delivery. Alerts below the minimum severity
// are ignored; when the queue is full the alert is dropped and counted.
func (d *Dispatcher) Notify(ctx context.Context, alert resilience.Alert) {
	if resilience.SeverityRank(alert.Severity) < resilience.SeverityRank(d.config.MinSeverity) {
		return
	}

	select {
	case d.queue <- alert:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		d.logger.Warn("Alert queue full, dropping alert",
			zap.String("alert_id", alert.ID),
			zap.String("type", alert.Type))
	}
}

// Dropped returns the number of alerts dropped due to a full queue
func (d *Dispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *Dispatcher) dispatchLoop() {
	defer close(d.doneCh)

	for {
		select {
		case alert := <-d.queue:
			d.deliver(alert)
		case <-d.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case alert := <-d.queue:
					d.deliver(alert)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(alert resilience.Alert) {
	for _, channel := range d.channels {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
		err := channel.Send(ctx, alert)
		cancel()

		if err != nil {
			d.logger.Error("Alert delivery failed",
				zap.String("channel", channel.Name()),
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}
}

// ParseSeverity maps a configuration string to an alert severity.
// Unrecognized values fall back to warning.
func ParseSeverity(s string) resilience.AlertSeverity {
	switch resilience.AlertSeverity(s) {
	case resilience.SeverityInfo, resilience.SeverityWarning, resilience.SeverityError, resilience.SeverityCritical:
		return resilience.AlertSeverity(s)
	default:
		return resilience.SeverityWarning
	}
}
