// Package notify delivers audit summaries to Slack incoming webhooks using
// Block Kit payloads.
package notify

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/check"
	"github.com/just-amazing/vps-sentinel/internal/remediation"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
	"github.com/just-amazing/vps-sentinel/pkg/shared/httpclient"
)

// Block Kit fragments. Only the block shapes the payload builder emits are
// modeled.
type block struct {
	Type     string `json:"type"`
	Text     *text  `json:"text,omitempty"`
	Elements []text `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type payload struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

// SlackNotifier posts summaries to one or more incoming webhooks.
type SlackNotifier struct {
	cfg    *config.Config
	client *resty.Client
	logger hclog.Logger

	// hostname is resolved once; injectable for tests.
	hostname string
	now      func() time.Time
}

// NewSlackNotifier builds a notifier from the notifications.slack section.
func NewSlackNotifier(cfg *config.Config, logger hclog.Logger) *SlackNotifier {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return &SlackNotifier{
		cfg:      cfg,
		client:   httpclient.InitializeRestyClient(logger, cfg),
		logger:   logger,
		hostname: host,
		now:      time.Now,
	}
}

// WebhookURLs collects every configured destination: the primary webhook_url
// from the config, then SLACK_WEBHOOK_URLS (comma separated) and the numbered
// SLACK_WEBHOOK_URL_1..9 environment variables. Duplicates are dropped.
func (n *SlackNotifier) WebhookURLs() []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(url string) {
		url = strings.TrimSpace(url)
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		urls = append(urls, url)
	}

	add(n.cfg.Notifications.Slack.WebhookURL)
	for _, url := range strings.Split(os.Getenv("SLACK_WEBHOOK_URLS"), ",") {
		add(url)
	}
	for i := 1; i <= 9; i++ {
		add(os.Getenv(fmt.Sprintf("SLACK_WEBHOOK_URL_%d", i)))
	}
	return urls
}

// SendSummary posts one audit summary message. Delivery failure to one
// webhook does not stop delivery to the rest; the first error is returned.
func (n *SlackNotifier) SendSummary(ctx context.Context, fixed []remediation.Fixed, alerts []check.Finding) error {
	if !n.cfg.Notifications.Slack.Enabled {
		return nil
	}
	urls := n.WebhookURLs()
	if len(urls) == 0 {
		n.logger.Warn("slack notifications enabled but no webhook URL configured")
		return nil
	}
	return n.post(ctx, urls, n.buildSummary(fixed, alerts))
}

// SendTest posts a short connectivity-check message to every webhook.
func (n *SlackNotifier) SendTest(ctx context.Context) error {
	urls := n.WebhookURLs()
	if len(urls) == 0 {
		return fmt.Errorf("no slack webhook URL configured")
	}
	msg := payload{
		Text: "vps-sentinel test notification",
		Blocks: []block{
			section(fmt.Sprintf(":white_check_mark: *vps-sentinel* test notification from `%s` at %s",
				n.hostname, n.now().Format("2006-01-02 15:04:05"))),
		},
	}
	return n.post(ctx, urls, msg)
}

func (n *SlackNotifier) post(ctx context.Context, urls []string, msg payload) error {
	var firstErr error
	for _, url := range urls {
		resp, err := n.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(msg).
			Post(url)
		if err != nil {
			n.logger.Error("slack delivery failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if resp.IsError() {
			n.logger.Error("slack webhook rejected payload", "status", resp.StatusCode(), "body", resp.String())
			if firstErr == nil {
				firstErr = fmt.Errorf("slack webhook returned status %d", resp.StatusCode())
			}
			continue
		}
		n.logger.Debug("slack notification delivered", "status", resp.StatusCode())
	}
	return firstErr
}

func (n *SlackNotifier) buildSummary(fixed []remediation.Fixed, alerts []check.Finding) payload {
	aggregate := check.AggregateSeverity(alerts)

	var header string
	switch {
	case aggregate >= check.SeverityCritical:
		header = ":rotating_light: Security Audit: CRITICAL"
	case aggregate >= check.SeverityWarning:
		header = ":warning: Security Audit: Warnings"
	case len(fixed) > 0:
		header = ":wrench: Security Audit: Issues Auto-Fixed"
	default:
		header = ":white_check_mark: Security Audit: All Clear"
	}

	blocks := []block{
		{Type: "header", Text: &text{Type: "plain_text", Text: strings.TrimSpace(stripEmoji(header))}},
	}

	contextLine := n.now().Format("2006-01-02 15:04:05 MST")
	if n.cfg.Notifications.Slack.IncludeHostname {
		contextLine = fmt.Sprintf("host `%s` | %s", n.hostname, contextLine)
	}
	blocks = append(blocks, block{
		Type:     "context",
		Elements: []text{{Type: "mrkdwn", Text: contextLine}},
	})

	if mention := n.cfg.Notifications.Slack.MentionOnCritical; mention != "" && aggregate >= check.SeverityCritical {
		blocks = append(blocks, section(mention+" critical findings need attention"))
	}

	if len(fixed) > 0 {
		var lines []string
		for _, f := range fixed {
			line := fmt.Sprintf(":wrench: *%s* — %s", f.Finding.CheckName, f.Outcome.Action)
			if f.Outcome.RollbackID != "" {
				line += fmt.Sprintf(" (rollback session `%s`)", f.Outcome.RollbackID)
			}
			lines = append(lines, line)
		}
		blocks = append(blocks, section("*Auto-fixed:*\n"+strings.Join(lines, "\n")))
	}

	if len(alerts) > 0 {
		var lines []string
		for _, alert := range alerts {
			lines = append(lines, fmt.Sprintf("%s *%s*: %s",
				severityEmoji(alert.Severity), alert.CheckName, alert.Message))
		}
		blocks = append(blocks, section("*Alerts:*\n"+strings.Join(lines, "\n")))
	} else if len(fixed) == 0 {
		blocks = append(blocks, section("All checks passed."))
	}

	return payload{Text: header, Blocks: blocks}
}

func section(markdown string) block {
	return block{Type: "section", Text: &text{Type: "mrkdwn", Text: markdown}}
}

func severityEmoji(s check.Severity) string {
	switch s {
	case check.SeverityCritical:
		return ":rotating_light:"
	case check.SeverityWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// stripEmoji removes the leading emoji shortcode for plain_text header
// blocks, which do not render mrkdwn.
func stripEmoji(s string) string {
	if strings.HasPrefix(s, ":") {
		if end := strings.Index(s[1:], ":"); end >= 0 {
			return s[end+2:]
		}
	}
	return s
}
