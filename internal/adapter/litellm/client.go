// Package litellm provides the LLM classifier backed by a LiteLLM proxy.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reviewd-io/reviewd/internal/domain/review"
	"github.com/reviewd-io/reviewd/internal/resilience"
)

const systemPrompt = `You are a mail triage classifier. Reply with exactly one
of the following labels and nothing else: %s.`

// Client classifies messages through the LiteLLM chat completions API.
type Client struct {
	baseURL    string
	masterKey  string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a LiteLLM classifier client.
func NewClient(baseURL, masterKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		masterKey: masterKey,
		model:     model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify asks the model for a single vocabulary token. A reply outside
// the vocabulary falls back to the default label rather than failing the
// intake.
func (c *Client) Classify(ctx context.Context, payload review.Payload) (review.Label, error) {
	labels := make([]string, len(review.Labels))
	for i, l := range review.Labels {
		labels[i] = string(l)
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, strings.Join(labels, ", "))},
			{Role: "user", Content: formatMessage(payload)},
		},
		Temperature: 0,
		MaxTokens:   8,
	}

	resp, err := c.doRequest(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return "", fmt.Errorf("classify unmarshal: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("classify: empty completion")
	}

	label := review.Label(strings.ToLower(strings.TrimSpace(parsed.Choices[0].Message.Content)))
	if !review.ValidLabel(label) {
		return review.DefaultLabel, nil
	}
	return label, nil
}

func formatMessage(p review.Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", p.From)
	fmt.Fprintf(&b, "To: %s\n", p.To)
	fmt.Fprintf(&b, "Subject: %s\n\n", p.Subject)
	b.WriteString(p.Body)
	return b.String()
}

func (c *Client) doRequest(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.masterKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.masterKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("litellm returned %d", resp.StatusCode)
		}

		result, err = io.ReadAll(resp.Body)
		return err
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	return result, err
}
