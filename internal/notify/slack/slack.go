// Package slack posts new-match notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JakeFAU/vin-monitor/internal/notify"
)

const httpTimeout = 15 * time.Second

// Notifier sends the plain-text notification body to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a Slack notifier. A nil client gets a default with a 15s timeout.
func New(webhookURL string, client *http.Client) (*Notifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack: webhook url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	return &Notifier{webhookURL: webhookURL, client: client}, nil
}

// Name implements notify.Notifier.
func (n *Notifier) Name() string { return "slack" }

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	body, err := json.Marshal(map[string]string{"text": msg.Body})
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // webhookURL is from trusted config
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
