// Package notify implements the pluggable push notification channels and
// the concurrent dispatcher that fans messages out to them.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/xy2yp/stargazer/internal/models"
)

const sendTimeout = 15 * time.Second

// Notifier is one concrete notification channel. Send reports failure
// through its error return and must never panic; a channel missing required
// configuration fails the send rather than the construction.
type Notifier interface {
	Name() string
	Send(ctx context.Context, title, content string) error
}

// builders maps a channel discriminant to its constructor. New channels
// register here.
var builders = map[string]func(cfg map[string]any, client *http.Client) Notifier{
	"webhook":    newWebhook,
	"gotify":     newGotify,
	"bark":       newBark,
	"serverchan": newServerChan,
	"telegram":   newTelegram,
}

// KnownChannel reports whether a notifier implementation exists for the
// given channel name.
func KnownChannel(name string) bool {
	_, ok := builders[name]
	return ok
}

// FromSettings resolves the configured channel into a Notifier. When no
// notifier can be built (push disabled, no channel selected, unknown
// channel, or empty config) it returns nil together with a human-readable
// reason; that is a soft condition, not an error.
//
// The cfg map must be the already-decrypted channel configuration.
func FromSettings(settings *models.AppSettings, cfg map[string]any, client *http.Client) (Notifier, string) {
	if !settings.IsPushEnabled {
		return nil, "push notifications are disabled"
	}
	if settings.PushChannel == "" {
		return nil, "push is enabled but no channel is selected"
	}

	build, ok := builders[settings.PushChannel]
	if !ok {
		return nil, fmt.Sprintf("no notifier implementation for channel %q", settings.PushChannel)
	}
	if len(cfg) == 0 {
		return nil, fmt.Sprintf("channel %q is selected but its config is empty", settings.PushChannel)
	}

	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	return build(cfg, client), ""
}

// NewPushClient builds the HTTP client used for sends. The proxy is applied
// only when the user enabled the push-proxy setting.
func NewPushClient(proxyURL string, useProxy bool) *http.Client {
	client := &http.Client{Timeout: sendTimeout}
	if !useProxy || proxyURL == "" {
		return client
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		slog.Warn("ignoring unparsable push proxy url", "url", proxyURL, "error", err)
		return client
	}
	client.Transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	return client
}

// stringField reads a string value from a channel config map, returning ""
// when the key is absent or not a string.
func stringField(cfg map[string]any, key string) string {
	v, ok := cfg[key].(string)
	if !ok {
		return ""
	}
	return v
}

// intField reads an integer value from a channel config map. JSON numbers
// decode as float64, so both forms are accepted.
func intField(cfg map[string]any, key string, fallback int) int {
	switch v := cfg[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
