package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"confhub/internal/events"
	"confhub/internal/ratelimit"
	"confhub/internal/retry"
	"confhub/internal/types"
	"confhub/internal/value"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testEvent(operation string) events.ConfigChanged {
	return events.ConfigChanged{
		ProjectID: "p1",
		ConfigID:  "c1",
		Name:      "limit",
		Version:   4,
		Config: &types.Config{
			ID:        "c1",
			ProjectID: "p1",
			Name:      "limit",
			Version:   4,
			Value:     value.Number(20),
		},
		AuthorEmail: "alice@example.com",
		Operation:   operation,
		At:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.ConfigChanged
}

func (r *recordingNotifier) NotifyConfigChanged(_ context.Context, event events.ConfigChanged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func fastRetry() *retry.Config {
	return &retry.Config{
		Enable:          true,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestWebhookNotifier(t *testing.T) {
	var (
		header http.Header
		body   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(&WebhookConfig{
		URL:          srv.URL,
		Secret:       "s3cret",
		IncludeValue: true,
		Headers:      map[string]string{"X-Team": "payments"},
		CommonData:   map[string]any{"region": "eu", "name": "ignored"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, n.NotifyConfigChanged(context.Background(), testEvent("update")))

	assert.Equal(t, "config.update", header.Get(HeaderEvent))
	assert.NotEmpty(t, header.Get(HeaderDelivery))
	assert.Equal(t, "payments", header.Get("X-Team"))
	assert.Equal(t, "sha256="+Sign(body, []byte("s3cret")), header.Get(HeaderSignature))

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "config.update", payload.EventType)
	assert.Equal(t, "limit", payload.Data["name"])
	assert.Equal(t, float64(4), payload.Data["version"])
	assert.Equal(t, float64(20), payload.Data["value"])
	assert.Equal(t, "eu", payload.Data["region"])
}

func TestWebhookNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(&WebhookConfig{URL: srv.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = n.NotifyConfigChanged(context.Background(), testEvent("update"))
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusBadRequest, status.Code)
	assert.False(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&StatusError{Code: http.StatusBadGateway}))
	assert.True(t, Retryable(&StatusError{Code: http.StatusTooManyRequests}))
	assert.False(t, Retryable(&StatusError{Code: http.StatusNotFound}))
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.False(t, Retryable(context.Canceled))
}

func TestSlackNotifier(t *testing.T) {
	var msg SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&msg)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewSlackNotifier(&SlackConfig{
		WebhookURL: srv.URL,
		Channel:    "#config",
		Template:   "{{.Name}} v{{.Version}} {{upper .Operation}}",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, n.NotifyConfigChanged(context.Background(), testEvent("restore")))
	assert.Equal(t, "#config", msg.Channel)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "limit v4 RESTORE", msg.Attachments[0].Text)
	assert.Equal(t, "warning", msg.Attachments[0].Color)
}

func TestSlackNotifierInvalidTemplate(t *testing.T) {
	_, err := NewSlackNotifier(&SlackConfig{WebhookURL: "http://localhost", Template: "{{.Name"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestManagerDispatchFilters(t *testing.T) {
	m, err := NewManager(Config{
		Enabled:    true,
		Timeout:    time.Second,
		Operations: []string{"update", "approve"},
	}, fastRetry(), zaptest.NewLogger(t))
	require.NoError(t, err)

	rec := &recordingNotifier{}
	m.Register("recorder", rec)
	assert.True(t, m.IsNotifierEnabled("recorder"))
	assert.False(t, m.IsNotifierEnabled(NotifierWebhook))

	ctx := context.Background()
	m.Dispatch(ctx, testEvent("update"))
	m.Dispatch(ctx, testEvent("create"))

	remote := testEvent("approve")
	remote.Origin = "other-instance"
	m.Dispatch(ctx, remote)

	assert.Equal(t, 1, rec.count())
}

func TestManagerRateLimit(t *testing.T) {
	m, err := NewManager(Config{
		Enabled: true,
		Timeout: time.Second,
		RateLimit: RateLimitConfig{
			Enabled: true,
			Config:  ratelimit.Config{Window: time.Minute, MaxRequests: 2, MaxKeys: 10},
		},
	}, fastRetry(), zaptest.NewLogger(t))
	require.NoError(t, err)

	rec := &recordingNotifier{}
	m.Register("recorder", rec)

	for i := 0; i < 5; i++ {
		m.Dispatch(context.Background(), testEvent("update"))
	}
	assert.Equal(t, 2, rec.count())

	other := testEvent("update")
	other.ProjectID = "p2"
	m.Dispatch(context.Background(), other)
	assert.Equal(t, 3, rec.count())
}

func TestManagerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, err := NewManager(Config{
		Enabled: true,
		Timeout: time.Second,
		Webhook: WebhookConfig{Enabled: true, URL: srv.URL},
	}, fastRetry(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.True(t, m.IsNotifierEnabled(NotifierWebhook))

	m.Dispatch(context.Background(), testEvent("update"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestManagerSubscribesToBus(t *testing.T) {
	logger := zaptest.NewLogger(t)
	bus := events.NewMemoryBus(logger)
	defer bus.Close()

	m, err := NewManager(Config{Enabled: true, Timeout: time.Second}, fastRetry(), logger)
	require.NoError(t, err)
	rec := &recordingNotifier{}
	m.Register("recorder", rec)

	m.Start(context.Background(), bus, 8)
	require.Eventually(t, func() bool { return bus.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), testEvent("create")))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.Equal(t, 0, bus.Len())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Enabled: true}).Validate())
	assert.Error(t, (&Config{Enabled: true, Timeout: time.Second, Webhook: WebhookConfig{Enabled: true}}).Validate())
	assert.Error(t, (&Config{Enabled: true, Timeout: time.Second, Slack: SlackConfig{Enabled: true}}).Validate())
	assert.NoError(t, (&Config{Enabled: true, Timeout: time.Second, Webhook: WebhookConfig{Enabled: true, URL: "http://hooks"}}).Validate())
}
