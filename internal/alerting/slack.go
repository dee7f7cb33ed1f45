package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scribeflow/resilience/pkg/resilience"
)

// SlackChannel delivers alerts to a Slack incoming webhook
type SlackChannel struct {
	webhookURL string
	username   string
	channel    string
	logger     *zap.Logger
	httpClient *http.Client
}

// SlackMessage represents a Slack message payload
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Username    string            `json:"username,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackChannel creates a Slack webhook channel
func NewSlackChannel(webhookURL, username, channel string, logger *zap.Logger) *SlackChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackChannel{
		webhookURL: webhookURL,
		username:   username,
		channel:    channel,
		logger:     logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the channel name
func (c *SlackChannel) Name() string {
	return "slack"
}

// Send posts the alert to the webhook
func (c *SlackChannel) Send(ctx context.Context, alert resilience.Alert) error {
	if c.webhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	payload, err := json.Marshal(c.buildMessage(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	c.logger.Info("Alert delivered to Slack",
		zap.String("alert_id", alert.ID),
		zap.String("webhook_url", maskWebhookURL(c.webhookURL)))

	return nil
}

// Test posts a test alert so operators can verify the webhook
func (c *SlackChannel) Test(ctx context.Context) error {
	return c.Send(ctx, resilience.Alert{
		ID:        "test",
		Type:      resilience.AlertTypeHealth,
		Severity:  resilience.SeverityInfo,
		Message:   "ScribeFlow resilience test alert. If you can read this, the Slack integration works.",
		Timestamp: time.Now(),
	})
}

func (c *SlackChannel) buildMessage(alert resilience.Alert) SlackMessage {
	message := SlackMessage{
		Text:      fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Message),
		Username:  c.username,
		Channel:   c.channel,
		IconEmoji: severityEmoji(alert.Severity),
	}

	message.Attachments = []SlackAttachment{{
		Color: severityColor(alert.Severity),
		Title: alertTitle(alert.Type),
		Text:  alert.Message,
		Fields: []SlackField{
			{Title: "Type", Value: alert.Type, Short: true},
			{Title: "Severity", Value: string(alert.Severity), Short: true},
		},
		Footer:    "ScribeFlow Resilience",
		Timestamp: alert.Timestamp.Unix(),
	}}

	return message
}

func severityEmoji(severity resilience.AlertSeverity) string {
	switch severity {
	case resilience.SeverityCritical:
		return ":rotating_light:"
	case resilience.SeverityError:
		return ":x:"
	case resilience.SeverityWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

func severityColor(severity resilience.AlertSeverity) string {
	switch severity {
	case resilience.SeverityCritical, resilience.SeverityError:
		return "danger"
	case resilience.SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

func alertTitle(alertType string) string {
	switch alertType {
	case resilience.AlertTypePerformance:
		return "Performance degradation"
	case resilience.AlertTypeErrorRate:
		return "Elevated error rate"
	case resilience.AlertTypeHealth:
		return "Health status change"
	default:
		return "Alert"
	}
}

// maskWebhookURL hides the webhook token when logging the URL
func maskWebhookURL(url string) string {
	if len(url) <= 30 {
		return "***"
	}
	return url[:30] + "***"
}
