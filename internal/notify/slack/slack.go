// Package slack posts manual-review notifications to Slack via incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

const (
	maxReasoningLen = 3000
	maxSubjectLen   = 120
	httpTimeout     = 10 * time.Second
)

// Notifier sends decisions that need a human to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a
// no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Notify posts a decided ticket to the configured Slack webhook.
func (n *Notifier) Notify(ctx context.Context, r *triage.Result) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(r))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "review notification sent",
		"ticket_id", r.Decision.TicketID,
		"team", r.Decision.AssignedTeam,
	)
	return nil
}

func buildMessage(r *triage.Result) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			{"type": "divider"},
			fieldsBlock(r),
			{"type": "divider"},
			reasoningBlock(r),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(r *triage.Result) map[string]any {
	title := "Manual review"
	if r.Decision.Fallback() {
		title = "Fallback decision"
	}
	subject := truncate(r.Ticket.Subject, maxSubjectLen)
	if subject == "" {
		subject = r.Decision.TicketID
	}

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s: %s", priorityEmoji(r.Decision), title, subject),
		},
	}
}

func fieldsBlock(r *triage.Result) map[string]any {
	d := r.Decision
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Ticket:* %s", d.TicketID)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Customer:* %s", d.CustomerID)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Team:* %s", d.AssignedTeam)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Priority:* %s", d.PriorityLevel)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Confidence:* %.1f%%", d.ConfidenceScore)},
	}
	if d.Fallback() {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Failure:* %s", d.FailureKind)})
	} else {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Processing:* %.0fms", d.ProcessingTimeMS)})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func reasoningBlock(r *triage.Result) map[string]any {
	text := truncate(r.Decision.Reasoning, maxReasoningLen)
	if text == "" {
		text = "_No reasoning recorded._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Reasoning*\n\n%s", text),
		},
	}
}

func contextBlock(r *triage.Result) map[string]any {
	ts := r.Decision.Timestamp
	if ts.IsZero() {
		ts = r.Ticket.Timestamp
	}

	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("switchboard • batch %s • %s", r.BatchID, ts.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func priorityEmoji(d ticket.FinalDecision) string {
	if d.Fallback() {
		return "\U0001f534" // red circle
	}
	switch d.PriorityLevel {
	case ticket.P0:
		return "\U0001f534" // red circle
	case ticket.P1:
		return "\U0001f7e0" // orange circle
	case ticket.P2:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
