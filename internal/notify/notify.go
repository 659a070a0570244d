// Package notify delivers committed config changes to external channels
// such as signed webhooks and Slack.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"confhub/internal/events"
	"confhub/internal/metrics"
	"confhub/internal/ratelimit"
	"confhub/internal/retry"

	"go.uber.org/zap"
)

// NotifierType represents the type of notifier
type NotifierType string

const (
	NotifierWebhook NotifierType = "webhook"
	NotifierSlack   NotifierType = "slack"
)

// Notifier delivers a change notification to one channel
type Notifier interface {
	// NotifyConfigChanged sends a config change notification
	NotifyConfigChanged(ctx context.Context, event events.ConfigChanged) error
}

// Config represents the notification configuration
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Operations restricts notifications to the listed change operations.
	// Empty means every operation.
	Operations []string `mapstructure:"operations"`

	// Timeout bounds a single delivery attempt
	Timeout time.Duration `mapstructure:"timeout"`

	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Slack     SlackConfig     `mapstructure:"slack"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits notifications per channel and project
type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	ratelimit.Config `mapstructure:",squash"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL is required")
	}
	if c.RateLimit.Enabled {
		if err := c.RateLimit.Config.Validate(); err != nil {
			return fmt.Errorf("invalid rate limit: %w", err)
		}
	}
	return nil
}

// StatusError is returned when a channel answers with an unexpected status
type StatusError struct {
	Notifier NotifierType
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed with status %d", e.Notifier, e.Code)
}

// Retryable reports whether a failed delivery should be attempted again.
// Client errors other than throttling are final.
func Retryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= 500 || status.Code == 429
	}
	return !errors.Is(err, context.Canceled)
}

// Manager represents notifier manager
type Manager struct {
	config    Config
	retry     *retry.Config
	logger    *zap.Logger
	notifiers map[NotifierType]Notifier
	mu        sync.RWMutex
	limiter   *ratelimit.Limiter
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewManager creates new notifier manager with the configured channels
func NewManager(cfg Config, retryCfg *retry.Config, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		config:    cfg,
		retry:     retryCfg,
		logger:    logger.With(zap.String("component", "notify")),
		notifiers: make(map[NotifierType]Notifier),
	}

	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.New(cfg.RateLimit.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to create notification rate limiter: %w", err)
		}
		m.limiter = limiter
	}

	if cfg.Webhook.Enabled {
		n, err := NewWebhookNotifier(&cfg.Webhook, m.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize webhook notifier: %w", err)
		}
		m.notifiers[NotifierWebhook] = n
	}

	if cfg.Slack.Enabled {
		n, err := NewSlackNotifier(&cfg.Slack, m.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize slack notifier: %w", err)
		}
		m.notifiers[NotifierSlack] = n
	}

	return m, nil
}

// Register adds or replaces a notifier
func (m *Manager) Register(notifierType NotifierType, n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers[notifierType] = n
}

// IsNotifierEnabled checks if a notifier is enabled
func (m *Manager) IsNotifierEnabled(notifierType NotifierType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.notifiers[notifierType]
	return ok
}

// Start subscribes to the bus and delivers notifications in background
func (m *Manager) Start(ctx context.Context, bus events.Bus, buffer int) {
	ctx, m.cancel = context.WithCancel(ctx)
	sub := bus.Subscribe(buffer)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer sub.Close()
		m.processNotifications(ctx, sub)
	}()
}

// Stop stops delivering and waits for the in-flight notification
func (m *Manager) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for notifications to complete")
	}
}

// processNotifications handles notification sending in background
func (m *Manager) processNotifications(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			m.Dispatch(ctx, event)
		}
	}
}

// Dispatch sends the event to every notifier. Changes received from other
// instances are skipped so each change is announced once.
func (m *Manager) Dispatch(ctx context.Context, event events.ConfigChanged) {
	if !event.IsLocal() {
		return
	}
	if len(m.config.Operations) > 0 && !slices.Contains(m.config.Operations, event.Operation) {
		return
	}

	m.mu.RLock()
	notifiers := make(map[NotifierType]Notifier, len(m.notifiers))
	for t, n := range m.notifiers {
		notifiers[t] = n
	}
	m.mu.RUnlock()

	for t, n := range notifiers {
		if m.limiter != nil && !m.limiter.Limit(string(t)+"/"+event.ProjectID).Allowed {
			metrics.NotificationsSent.WithLabelValues(string(t), "rate_limited").Inc()
			m.logger.Warn("Rate limit exceeded for notifier",
				zap.String("type", string(t)),
				zap.String("project", event.ProjectID))
			continue
		}

		err := retry.Execute(ctx, m.retry, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
			defer cancel()
			return n.NotifyConfigChanged(attemptCtx, event)
		}, Retryable)
		if err != nil {
			metrics.NotificationsSent.WithLabelValues(string(t), "error").Inc()
			m.logger.Error("Failed to send notification",
				zap.String("type", string(t)),
				zap.String("config", event.Name),
				zap.Int64("version", event.Version),
				zap.Error(err))
			continue
		}
		metrics.NotificationsSent.WithLabelValues(string(t), "sent").Inc()
	}
}
