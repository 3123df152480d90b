package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xy2yp/stargazer/internal/i18n"
)

const (
	maxReadmeChars  = 2000
	maxSummaryChars = 400
	minSummaryChars = 10

	temperature = 0.3
	maxTokens   = 4096
)

// defaultRetrySchedule is the fixed delay sequence applied when the backend
// answers with a rate-limit status. One attempt is made per slot.
var defaultRetrySchedule = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// Summarizer produces a short repository summary from README content.
type Summarizer interface {
	SummarizeWithRetry(ctx context.Context, fullName, readme string) (string, error)
}

// Compile-time interface check.
var _ Summarizer = (*Client)(nil)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	lang    string
	client  *http.Client

	// retrySchedule is a field so tests can collapse the delays.
	retrySchedule []time.Duration
}

// NewClient creates a Client for the given OpenAI-compatible base URL. The
// prompt language follows the UI language setting.
func NewClient(baseURL, apiKey, model, lang string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		lang:    lang,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		retrySchedule: defaultRetrySchedule,
	}
}

// chatRequest is the request body for the chat completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// chatMessage is a single message in the chat request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response body from the chat completions endpoint.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize performs a single summarization call. README content is truncated
// before it is interpolated into the prompt, and the returned summary is
// trimmed and capped at a display-friendly length.
func (c *Client) Summarize(ctx context.Context, fullName, readme string) (string, error) {
	prompt := strings.NewReplacer(
		"{full_name}", fullName,
		"{readme_content}", truncateRunes(readme, maxReadmeChars),
	).Replace(i18n.Get(c.lang).AISummaryPrompt)

	text, err := c.callAPI(ctx, prompt)
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(text)
	if len([]rune(summary)) < minSummaryChars {
		return "", fmt.Errorf("%w: %q", ErrEmptyContent, summary)
	}
	return truncateRunes(summary, maxSummaryChars), nil
}

// SummarizeWithRetry wraps Summarize with the rate-limit retry schedule.
// Any error other than ErrRateLimited is returned immediately; a backend
// that stays rate limited through the whole schedule yields ErrRateLimited.
func (c *Client) SummarizeWithRetry(ctx context.Context, fullName, readme string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < len(c.retrySchedule); attempt++ {
		summary, err := c.Summarize(ctx, fullName, readme)
		if err == nil {
			return summary, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return "", err
		}
		lastErr = err

		if attempt == len(c.retrySchedule)-1 {
			break
		}
		delay := c.retrySchedule[attempt]
		slog.Warn("ai backend rate limited, backing off",
			"repo", fullName, "attempt", attempt+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// callAPI posts one chat completion request and maps HTTP failures onto the
// package error taxonomy.
func (c *Client) callAPI(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("calling AI backend", "model", c.model)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response body: %v", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrInvalidAPIKey
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrEndpoint, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: unexpected status %d: %s", ErrEndpoint, resp.StatusCode, firstLine(respBody))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("%w: parsing response: %v", ErrEndpoint, err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrEndpoint, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrEmptyContent)
	}
	return apiResp.Choices[0].Message.Content, nil
}

// truncateRunes caps s at n runes so multi-byte text is never split.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return truncateRunes(s, 200)
}
