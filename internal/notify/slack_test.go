package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-amazing/vps-sentinel/internal/check"
	"github.com/just-amazing/vps-sentinel/internal/remediation"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

func testNotifier(cfg *config.Config) *SlackNotifier {
	n := NewSlackNotifier(cfg, hclog.NewNullLogger())
	n.hostname = "test-host"
	n.now = func() time.Time { return time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC) }
	return n
}

func webhookServer(t *testing.T) (*httptest.Server, *[][]byte) {
	t.Helper()
	var bodies [][]byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

// decodePayload unmarshals a captured webhook body. Assertions must run on
// the decoded payload: resty's JSON encoder HTML-escapes characters like
// "<", so substring checks on the raw body miss mrkdwn such as "<!channel>".
func decodePayload(t *testing.T, body []byte) payload {
	t.Helper()
	var msg payload
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg
}

func blockTexts(msg payload) string {
	var parts []string
	for _, b := range msg.Blocks {
		if b.Text != nil {
			parts = append(parts, b.Text.Text)
		}
		for _, e := range b.Elements {
			parts = append(parts, e.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestSendSummaryPostsBlockKitPayload(t *testing.T) {
	srv, bodies := webhookServer(t)

	cfg := &config.Config{
		Notifications: config.Notifications{Slack: config.Slack{
			Enabled:         true,
			WebhookURL:      srv.URL,
			IncludeHostname: true,
		}},
	}
	n := testNotifier(cfg)

	fixed := []remediation.Fixed{{
		Finding: check.Finding{CheckName: "firewall"},
		Outcome: remediation.Outcome{Success: true, Action: "Enable UFW firewall", RollbackID: "20260110_120000"},
	}}
	alerts := []check.Finding{{
		CheckName: "docker-ports",
		Severity:  check.SeverityCritical,
		Message:   "database port exposed",
	}}

	require.NoError(t, n.SendSummary(context.Background(), fixed, alerts))
	require.Len(t, *bodies, 1)

	msg := decodePayload(t, (*bodies)[0])
	assert.Contains(t, msg.Text, "CRITICAL")
	require.NotEmpty(t, msg.Blocks)
	assert.Equal(t, "header", msg.Blocks[0].Type)

	texts := blockTexts(msg)
	assert.Contains(t, texts, "test-host")
	assert.Contains(t, texts, "firewall")
	assert.Contains(t, texts, "20260110_120000")
	assert.Contains(t, texts, "database port exposed")
}

func TestSendSummaryMentionsOnCritical(t *testing.T) {
	srv, bodies := webhookServer(t)

	cfg := &config.Config{
		Notifications: config.Notifications{Slack: config.Slack{
			Enabled:           true,
			WebhookURL:        srv.URL,
			MentionOnCritical: "<!channel>",
		}},
	}
	n := testNotifier(cfg)

	alerts := []check.Finding{{CheckName: "firewall", Severity: check.SeverityCritical, Message: "UFW disabled"}}
	require.NoError(t, n.SendSummary(context.Background(), nil, alerts))

	require.Len(t, *bodies, 1)
	assert.Contains(t, blockTexts(decodePayload(t, (*bodies)[0])), "<!channel>")
}

func TestSendSummaryNoMentionBelowCritical(t *testing.T) {
	srv, bodies := webhookServer(t)

	cfg := &config.Config{
		Notifications: config.Notifications{Slack: config.Slack{
			Enabled:           true,
			WebhookURL:        srv.URL,
			MentionOnCritical: "<!channel>",
		}},
	}
	n := testNotifier(cfg)

	alerts := []check.Finding{{CheckName: "file-permissions", Severity: check.SeverityWarning, Message: "loose .env"}}
	require.NoError(t, n.SendSummary(context.Background(), nil, alerts))

	require.Len(t, *bodies, 1)
	assert.NotContains(t, blockTexts(decodePayload(t, (*bodies)[0])), "<!channel>")
}

func TestSendSummaryDisabledDoesNothing(t *testing.T) {
	srv, bodies := webhookServer(t)

	cfg := &config.Config{
		Notifications: config.Notifications{Slack: config.Slack{Enabled: false, WebhookURL: srv.URL}},
	}
	n := testNotifier(cfg)

	require.NoError(t, n.SendSummary(context.Background(), nil, []check.Finding{{Severity: check.SeverityCritical}}))
	assert.Empty(t, *bodies)
}

func TestSendSummaryWebhookErrorReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		HTTPClient:    config.HTTPClient{Timeout: 5 * time.Second},
		Notifications: config.Notifications{Slack: config.Slack{Enabled: true, WebhookURL: srv.URL}},
	}
	n := testNotifier(cfg)

	err := n.SendSummary(context.Background(), nil, []check.Finding{{CheckName: "x", Severity: check.SeverityWarning}})
	assert.Error(t, err)
}

func TestWebhookURLsMergesEnvSources(t *testing.T) {
	t.Setenv("SLACK_WEBHOOK_URLS", "https://hooks.example/a, https://hooks.example/b")
	t.Setenv("SLACK_WEBHOOK_URL_1", "https://hooks.example/c")
	t.Setenv("SLACK_WEBHOOK_URL_2", "https://hooks.example/a") // duplicate

	cfg := &config.Config{
		Notifications: config.Notifications{Slack: config.Slack{WebhookURL: "https://hooks.example/primary"}},
	}
	n := testNotifier(cfg)

	urls := n.WebhookURLs()
	assert.Equal(t, []string{
		"https://hooks.example/primary",
		"https://hooks.example/a",
		"https://hooks.example/b",
		"https://hooks.example/c",
	}, urls)
}

func TestSendTestDelivers(t *testing.T) {
	srv, bodies := webhookServer(t)

	cfg := &config.Config{
		Notifications: config.Notifications{Slack: config.Slack{WebhookURL: srv.URL}},
	}
	n := testNotifier(cfg)

	require.NoError(t, n.SendTest(context.Background()))
	require.Len(t, *bodies, 1)
	assert.Contains(t, string((*bodies)[0]), "test notification")
}

func TestSendTestWithoutWebhookFails(t *testing.T) {
	n := testNotifier(&config.Config{})
	assert.Error(t, n.SendTest(context.Background()))
}

func TestBuildSummaryAllClearHeader(t *testing.T) {
	n := testNotifier(&config.Config{})
	msg := n.buildSummary(nil, nil)
	assert.Contains(t, msg.Text, "All Clear")
}

func TestStripEmoji(t *testing.T) {
	assert.Equal(t, " Security Audit: CRITICAL", stripEmoji(":rotating_light: Security Audit: CRITICAL"))
	assert.Equal(t, "no emoji", stripEmoji("no emoji"))
}
