package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// defaultWebhookTemplate is used when the user does not provide a JSON
// template of their own.
const defaultWebhookTemplate = `{"text": "{title}\n{content}"}`

// webhookNotifier posts to an arbitrary user-configured URL. The request
// body is built from a user-supplied JSON template in which every string
// containing the literal tokens {title} or {content} is substituted,
// recursively through nested objects and arrays.
type webhookNotifier struct {
	url      string
	method   string
	template string
	client   *http.Client
}

func newWebhook(cfg map[string]any, client *http.Client) Notifier {
	template := stringField(cfg, "json")
	if template == "" {
		template = defaultWebhookTemplate
	}
	method := strings.ToUpper(stringField(cfg, "method"))
	if method == "" {
		method = http.MethodPost
	}
	return &webhookNotifier{
		url:      stringField(cfg, "url"),
		method:   method,
		template: template,
		client:   client,
	}
}

func (n *webhookNotifier) Name() string { return "webhook" }

func (n *webhookNotifier) Send(ctx context.Context, title, content string) error {
	if n.url == "" {
		return fmt.Errorf("webhook: url is not configured")
	}

	var templateValue any
	if err := json.Unmarshal([]byte(n.template), &templateValue); err != nil {
		return fmt.Errorf("webhook: invalid JSON template: %w", err)
	}

	payload := fillTemplate(templateValue, title, content)

	switch n.method {
	case http.MethodPost:
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("webhook: encoding payload: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return n.do(req)

	case http.MethodGet:
		target, err := url.Parse(n.url)
		if err != nil {
			return fmt.Errorf("webhook: invalid url: %w", err)
		}
		query := target.Query()
		if obj, ok := payload.(map[string]any); ok {
			for k, v := range obj {
				query.Set(k, fmt.Sprint(v))
			}
		}
		target.RawQuery = query.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return fmt.Errorf("webhook: creating request: %w", err)
		}
		return n.do(req)

	default:
		return fmt.Errorf("webhook: unsupported HTTP method %q", n.method)
	}
}

func (n *webhookNotifier) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: sending request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: server responded with status %d", resp.StatusCode)
	}
	return nil
}

// fillTemplate walks a decoded JSON value and substitutes {title} and
// {content} in every string, at any nesting depth.
func fillTemplate(value any, title, content string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = fillTemplate(elem, title, content)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = fillTemplate(elem, title, content)
		}
		return out
	case string:
		replaced := strings.ReplaceAll(v, "{title}", title)
		return strings.ReplaceAll(replaced, "{content}", content)
	default:
		return v
	}
}
