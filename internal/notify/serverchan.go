package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// serverChanNotifier pushes through the ServerChan Turbo API. The endpoint
// is scoped by the send key and expects a form-encoded body; success is
// discriminated by a business code of 0 in the JSON response.
type serverChanNotifier struct {
	sendKey string
	client  *http.Client
}

func newServerChan(cfg map[string]any, client *http.Client) Notifier {
	return &serverChanNotifier{
		sendKey: stringField(cfg, "sendkey"),
		client:  client,
	}
}

func (n *serverChanNotifier) Name() string { return "serverchan" }

func (n *serverChanNotifier) Send(ctx context.Context, title, content string) error {
	if n.sendKey == "" {
		return fmt.Errorf("serverchan: sendkey is not configured")
	}

	form := url.Values{}
	form.Set("title", title)
	form.Set("desp", content)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://sctapi.ftqq.com/%s.send", n.sendKey),
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("serverchan: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("serverchan: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("serverchan: server responded with status %d", resp.StatusCode)
	}

	var result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("serverchan: decoding response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("serverchan: api error %d: %s", result.Code, result.Message)
	}
	return nil
}
