package resilience

import (
	"context"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// SeverityRank orders severities for minimum-severity filtering.
// Unknown severities rank lowest.
func SeverityRank(s AlertSeverity) int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Alert types raised by the health monitor and the manager
const (
	AlertTypePerformance = "performance"
	AlertTypeErrorRate   = "error_rate"
	AlertTypeHealth      = "health"
)

// Alert represents a condition that needs operator attention
type Alert struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// AlertNotifier delivers alerts to external channels. Delivery failures
// must not propagate back into the request path.
type AlertNotifier interface {
	Notify(ctx context.Context, alert Alert)
}

// AlertSink receives every new alert the health monitor records
type AlertSink func(Alert)
