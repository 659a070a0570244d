package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"confhub/internal/events"

	"go.uber.org/zap"
)

const defaultSlackTemplate = "*{{.Name}}* is now at version {{.Version}} ({{.Operation}} by {{.AuthorEmail}})"

// SlackConfig represents Slack notification configuration
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Username   string `mapstructure:"username"`
	IconEmoji  string `mapstructure:"icon_emoji"`
	IconURL    string `mapstructure:"icon_url"`

	// Template renders the message text from the change event
	Template string `mapstructure:"template"`
}

// SlackNotifier represents Slack notifier
type SlackNotifier struct {
	config *SlackConfig
	logger *zap.Logger
	client *http.Client
	tmpl   *template.Template
}

// SlackMessage represents Slack message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	IconURL     string            `json:"icon_url,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents Slack attachment
type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer"`
	Timestamp int64        `json:"ts"`
}

// SlackField represents Slack field
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.Format(time.RFC3339)
	},
	"upper": strings.ToUpper,
}

// NewSlackNotifier creates new SlackNotifier
func NewSlackNotifier(cfg *SlackConfig, logger *zap.Logger) (*SlackNotifier, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL is required")
	}

	text := cfg.Template
	if text == "" {
		text = defaultSlackTemplate
	}
	tmpl, err := template.New("slack").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid slack template: %w", err)
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:    10,
			IdleConnTimeout: 30 * time.Second,
		},
	}

	return &SlackNotifier{
		config: cfg,
		logger: logger,
		client: client,
		tmpl:   tmpl,
	}, nil
}

// NotifyConfigChanged sends a config change notification
func (n *SlackNotifier) NotifyConfigChanged(ctx context.Context, event events.ConfigChanged) error {
	var text bytes.Buffer
	if err := n.tmpl.Execute(&text, event); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.config.Username,
		IconEmoji: n.config.IconEmoji,
		IconURL:   n.config.IconURL,
		Attachments: []SlackAttachment{{
			Color: operationColor(event.Operation),
			Title: "Config changed: " + event.Name,
			Text:  text.String(),
			Fields: []SlackField{
				{Title: "Project", Value: event.ProjectID, Short: true},
				{Title: "Version", Value: fmt.Sprintf("%d", event.Version), Short: true},
			},
			Footer:    "confhub",
			Timestamp: event.At.Unix(),
		}},
	}
	return n.send(ctx, msg)
}

// send sends a slack message
func (n *SlackNotifier) send(ctx context.Context, msg SlackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_, _ = io.Copy(io.Discard, Body)
		if err := Body.Close(); err != nil {
			n.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Notifier: NotifierSlack, Code: resp.StatusCode}
	}
	return nil
}

func operationColor(operation string) string {
	switch operation {
	case "create":
		return "good"
	case "restore":
		return "warning"
	default:
		return "#439FE0"
	}
}
