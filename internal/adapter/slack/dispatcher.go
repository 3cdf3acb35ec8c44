// Package slack implements a dispatch.Dispatcher posting review requests
// to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/reviewd-io/reviewd/internal/domain/review"
	"github.com/reviewd-io/reviewd/internal/resilience"
)

const providerName = "slack"

// ErrNotConfigured is returned when the webhook URL is missing.
var ErrNotConfigured = errors.New("slack: webhook URL not configured")

// Dispatcher posts review requests to Slack via incoming webhook. The
// message carries the correlation id a reviewer must echo back in the
// callback.
type Dispatcher struct {
	webhookURL      string
	callbackBaseURL string
	httpClient      *http.Client
	breaker         *resilience.Breaker
}

// NewDispatcher creates a Slack dispatcher with the given webhook URL.
// callbackBaseURL is the externally reachable base of this service, shown
// to reviewers so their tooling knows where to send the decision.
func NewDispatcher(webhookURL, callbackBaseURL string) *Dispatcher {
	return &Dispatcher{
		webhookURL:      webhookURL,
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
		httpClient:      http.DefaultClient,
	}
}

// SetBreaker attaches a circuit breaker to outgoing webhook posts.
func (d *Dispatcher) SetBreaker(b *resilience.Breaker) {
	d.breaker = b
}

func (d *Dispatcher) Name() string { return providerName }

// slackMessage is the Slack Block Kit message payload.
type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Dispatch posts the review request. Fire-and-forget at the call site:
// the caller logs failures but never rolls back the pending record.
func (d *Dispatcher) Dispatch(ctx context.Context, req *review.Request, alternatives []review.Label) error {
	if d.webhookURL == "" {
		return ErrNotConfigured
	}

	alts := make([]string, len(alternatives))
	for i, a := range alternatives {
		alts[i] = string(a)
	}

	detail := fmt.Sprintf("*From:* %s\n*To:* %s\n*Subject:* %s\n*Proposed label:* `%s`\n*Alternatives:* %s",
		req.Payload.From, req.Payload.To, req.Payload.Subject,
		req.ProposedLabel, strings.Join(alts, ", "))

	instructions := fmt.Sprintf(
		"Reply via `POST %s/api/v1/webhooks/review` with correlation id `%s`. "+
			"Approve with `approved: true`, or comment `%s <label>` to override.",
		d.callbackBaseURL, req.ID, review.OverrideMarker)

	msg := slackMessage{
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: "Review requested"}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: detail}},
			{Type: "context", Text: &slackText{Type: "mrkdwn", Text: instructions}},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	post := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("slack request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("slack send: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			return fmt.Errorf("slack returned %d", resp.StatusCode)
		}
		return nil
	}

	if d.breaker != nil {
		return d.breaker.Execute(post)
	}
	return post()
}
