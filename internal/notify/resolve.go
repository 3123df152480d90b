package notify

import (
	"encoding/json"
	"fmt"

	"github.com/xy2yp/stargazer/internal/models"
	"github.com/xy2yp/stargazer/internal/secrets"
)

// Resolve decrypts and parses the stored push configuration and builds the
// configured notifier. Like FromSettings it returns a nil Notifier with a
// human-readable reason when push is disabled or misconfigured.
func Resolve(settings *models.AppSettings, box *secrets.Box, proxyURL string) (Notifier, string) {
	if !settings.IsPushEnabled {
		return nil, "push notifications are disabled"
	}

	raw, err := box.Decrypt(settings.PushConfig)
	if err != nil {
		return nil, fmt.Sprintf("decrypting push config: %v", err)
	}

	cfg := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, fmt.Sprintf("parsing push config: %v", err)
		}
	}

	client := NewPushClient(proxyURL, settings.IsPushProxyEnabled)
	return FromSettings(settings, cfg, client)
}
