package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// gotifyNotifier pushes through a self-hosted Gotify server.
type gotifyNotifier struct {
	url      string
	token    string
	priority int
	client   *http.Client
}

func newGotify(cfg map[string]any, client *http.Client) Notifier {
	return &gotifyNotifier{
		url:      strings.TrimSuffix(stringField(cfg, "url"), "/"),
		token:    stringField(cfg, "token"),
		priority: intField(cfg, "priority", 8),
		client:   client,
	}
}

func (n *gotifyNotifier) Name() string { return "gotify" }

func (n *gotifyNotifier) Send(ctx context.Context, title, content string) error {
	if n.url == "" || n.token == "" {
		return fmt.Errorf("gotify: url or token is not configured")
	}

	payload := map[string]any{
		"title":    title,
		"message":  content,
		"priority": n.priority,
		"extras": map[string]any{
			"client::display": map[string]any{
				// Tell the client to render the message as Markdown.
				"contentType": "text/markdown",
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gotify: encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.url+"/message?token="+n.token, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gotify: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("gotify: sending request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gotify: server responded with status %d", resp.StatusCode)
	}
	return nil
}
