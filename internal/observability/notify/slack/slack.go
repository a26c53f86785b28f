// Package slack posts session security alerts to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/mmk-sessions/internal/observability/notify"
)

// Config captures the Slack webhook settings.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string // defaults to "mmk-sessions"
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// SubjectURLPrefix turns the subject into a link to an admin page, e.g. https://admin/subjects.
	SubjectURLPrefix string
}

// Client delivers security alerts to a Slack webhook.
type Client struct {
	webhookURL    string
	channel       string
	username      string
	subjectPrefix *url.URL
	poster        notify.Poster
	now           func() time.Time
}

var _ notify.Sink = (*Client)(nil)

// NewClient requires a webhook URL. An unusable SubjectURLPrefix is ignored.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "mmk-sessions"
	}

	return &Client{
		webhookURL:    webhookURL,
		channel:       strings.TrimSpace(cfg.Channel),
		username:      username,
		subjectPrefix: parsePrefix(cfg.SubjectURLPrefix),
		poster:        notify.NewPoster("slack", cfg.Client, cfg.Timeout, cfg.RetryLimit),
		now:           time.Now,
	}, nil
}

func parsePrefix(raw string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}

// SendSecurityAlert posts one formatted message.
func (c *Client) SendSecurityAlert(ctx context.Context, alert notify.SecurityAlert) error {
	return c.poster.PostJSON(ctx, c.webhookURL, c.formatMessage(alert))
}

type message struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Channel  string `json:"channel,omitempty"`
}

func (c *Client) formatMessage(alert notify.SecurityAlert) message {
	at := alert.OccurredAt
	if at.IsZero() {
		at = c.now()
	}

	lines := []string{header(alert)}
	severity := alert.Severity
	if severity == "" {
		severity = notify.SeverityWarning
	}
	lines = appendField(lines, "Severity", severity)
	lines = appendField(lines, "Subject", c.subjectValue(alert.Subject))
	lines = appendField(lines, "Session", escape(alert.SessionName))
	lines = appendField(lines, "Client IP", escape(alert.ClientIP))
	lines = appendField(lines, "Reason", escape(alert.Reason))

	if len(alert.Metadata) > 0 {
		lines = append(lines, "• Metadata:")
		keys := make([]string, 0, len(alert.Metadata))
		for k := range alert.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("    • %s: %s", escape(k), escape(alert.Metadata[k])))
		}
	}
	lines = append(lines, "• Timestamp: "+at.UTC().Format(time.RFC3339))

	return message{Text: strings.Join(lines, "\n"), Username: c.username, Channel: c.channel}
}

func header(alert notify.SecurityAlert) string {
	switch alert.Kind {
	case notify.KindAdminKill:
		return "*Sessions killed by an administrator*"
	case notify.KindLockout:
		return "*Login locked after repeated failures*"
	case "":
		return "*Session security alert*"
	default:
		return "*Session security alert* (" + escape(alert.Kind) + ")"
	}
}

func appendField(lines []string, label, value string) []string {
	if strings.TrimSpace(value) == "" {
		return lines
	}
	return append(lines, "• "+label+": "+value)
}

// subjectValue renders the subject, linked to the admin page when a prefix is configured.
func (c *Client) subjectValue(subject string) string {
	raw := strings.TrimSpace(subject)
	if raw == "" {
		return ""
	}
	name := escape(raw)
	if c.subjectPrefix == nil {
		return name
	}
	return fmt.Sprintf("<%s|%s>", c.subjectPrefix.JoinPath(raw).String(), name)
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escape neutralises Slack's control characters in user-controlled text.
func escape(value string) string {
	return slackEscaper.Replace(value)
}
