package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// WebhookClient posts alerts as JSON to a configured HTTP endpoint
type WebhookClient struct {
	url        string
	authToken  string
	httpClient *http.Client
}

// NewWebhookClient creates a webhook notifier. An empty URL yields a
// client whose sends fail with a configuration error.
func NewWebhookClient(url, authToken string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookClient{
		url:       url,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the channel for logs
func (c *WebhookClient) Name() string {
	return "webhook"
}

// IsConfigured returns true when a URL is set
func (c *WebhookClient) IsConfigured() bool {
	return c.url != ""
}

type webhookPayload struct {
	Type      string              `json:"type"`
	Subject   string              `json:"subject,omitempty"`
	Body      string              `json:"body,omitempty"`
	Alert     *entity.AlertRecord `json:"alert,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// SendAlert delivers a single alert
func (c *WebhookClient) SendAlert(ctx context.Context, alert *entity.AlertRecord) error {
	return c.post(ctx, webhookPayload{
		Type:      "alert",
		Alert:     alert,
		Timestamp: time.Now(),
	})
}

// SendDigest delivers a rendered multi-alert message
func (c *WebhookClient) SendDigest(ctx context.Context, subject, body string) error {
	return c.post(ctx, webhookPayload{
		Type:      "digest",
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now(),
	})
}

func (c *WebhookClient) post(ctx context.Context, payload webhookPayload) error {
	if !c.IsConfigured() {
		return fmt.Errorf("webhook URL not configured")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
