package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"confhub/internal/events"
	"confhub/internal/version"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Webhook request headers
const (
	HeaderEvent     = "X-Confhub-Event"
	HeaderDelivery  = "X-Confhub-Delivery"
	HeaderSignature = "X-Confhub-Signature"
)

// WebhookConfig represents webhook notification configuration
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
	Method  string `mapstructure:"method"`

	// IncludeValue adds the committed base value to the payload
	IncludeValue bool              `mapstructure:"include_value"`
	Headers      map[string]string `mapstructure:"headers"`
	CommonData   map[string]any    `mapstructure:"common_data"`
}

// WebhookNotifier represents webhook notifier
type WebhookNotifier struct {
	config *WebhookConfig
	logger *zap.Logger
	client *http.Client
}

// WebhookPayload represents the standard webhook payload structure
type WebhookPayload struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewWebhookNotifier creates new webhook notifier
func NewWebhookNotifier(cfg *WebhookConfig, logger *zap.Logger) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	return &WebhookNotifier{
		config: cfg,
		logger: logger,
		client: client,
	}, nil
}

// NotifyConfigChanged sends a config change notification
func (n *WebhookNotifier) NotifyConfigChanged(ctx context.Context, event events.ConfigChanged) error {
	data := map[string]any{
		"project_id":   event.ProjectID,
		"config_id":    event.ConfigID,
		"name":         event.Name,
		"version":      event.Version,
		"operation":    event.Operation,
		"author_email": event.AuthorEmail,
		"changed_at":   event.At,
	}
	if n.config.IncludeValue && event.Config != nil {
		data["value"] = event.Config.Value
	}
	for k, v := range n.config.CommonData {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}

	return n.sendWebhook(ctx, WebhookPayload{
		EventType: "config." + event.Operation,
		EventID:   uuid.New().String(),
		Timestamp: time.Now(),
		Data:      data,
	})
}

// sendWebhook sends a webhook
func (n *WebhookNotifier) sendWebhook(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	method := n.config.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, n.config.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "confhub-webhook/"+version.GetInfo().Version)
	req.Header.Set(HeaderEvent, payload.EventType)
	req.Header.Set(HeaderDelivery, payload.EventID)
	if n.config.Secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(data, []byte(n.config.Secret)))
	}
	for k, v := range n.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_, _ = io.Copy(io.Discard, Body)
		if err := Body.Close(); err != nil {
			n.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode >= 300 {
		return &StatusError{Notifier: NotifierWebhook, Code: resp.StatusCode}
	}
	return nil
}

// Sign returns the hex encoded HMAC-SHA256 of payload
func Sign(payload []byte, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
