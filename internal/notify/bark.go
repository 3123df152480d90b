package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// defaultBarkServer is the official Bark server used when the user does not
// run their own.
const defaultBarkServer = "https://api.day.app"

// jumpLinkPattern matches the localized "jump" markdown link the message
// composer embeds, capturing its URL so Bark can open it on tap.
var jumpLinkPattern = regexp.MustCompile(`(?i)\[(?:[^\]]*(?:跃迁|jump)[^\]]*)\]\(([^)]*)\)`)

// barkNotifier pushes to an iOS device through Bark.
type barkNotifier struct {
	key       string
	serverURL string
	client    *http.Client
}

func newBark(cfg map[string]any, client *http.Client) Notifier {
	server := strings.TrimSuffix(stringField(cfg, "server_url"), "/")
	if server == "" {
		server = defaultBarkServer
	}
	return &barkNotifier{
		key:       stringField(cfg, "key"),
		serverURL: server,
		client:    client,
	}
}

func (n *barkNotifier) Name() string { return "bark" }

func (n *barkNotifier) Send(ctx context.Context, title, content string) error {
	if n.key == "" {
		return fmt.Errorf("bark: device key is not configured")
	}

	payload := map[string]any{
		"title":      title,
		"body":       content,
		"device_key": n.key,
		"group":      "StarGazer",
		"level":      "active",
	}
	if m := jumpLinkPattern.FindStringSubmatch(content); m != nil && m[1] != "" {
		payload["url"] = m[1]
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bark: encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.serverURL+"/push", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bark: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("bark: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bark: server responded with status %d", resp.StatusCode)
	}

	// HTTP 200 still carries a business-level result code.
	var result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("bark: decoding response: %w", err)
	}
	if result.Code != 200 {
		return fmt.Errorf("bark: api error %d: %s", result.Code, result.Message)
	}
	return nil
}
