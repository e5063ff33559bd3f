// Package notification provides alert delivery to external channels
// (webhooks, logs) for trading events such as protective closes and
// order rejections.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"papertrader/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// WebhookNotifier POSTs alerts as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier with a bounded timeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// PositionClosed builds the alert for a protective or manual position close.
func PositionClosed(pos model.Position) Alert {
	level := AlertInfo
	if pos.ExitReason == model.ExitStopLoss {
		level = AlertWarning
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("Position closed: %s", pos.ExitReason),
		Message: fmt.Sprintf("%s %s qty=%.6f entry=%.2f exit=%.2f pnl=%.2f",
			pos.Symbol, pos.Side, pos.Qty, pos.EntryPrice, pos.ExitPrice, pos.RealizedPnL),
	}
}

// OrderRejected builds the alert for a rejected order.
func OrderRejected(o model.Order) Alert {
	return Alert{
		Level: AlertWarning,
		Title: "Order rejected",
		Message: fmt.Sprintf("%s %s %s qty=%.6f",
			o.ID, o.Side, o.Symbol, o.Qty),
	}
}
