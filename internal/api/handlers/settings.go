package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/xy2yp/stargazer/internal/models"
	"github.com/xy2yp/stargazer/internal/notify"
	"github.com/xy2yp/stargazer/internal/secrets"
	"github.com/xy2yp/stargazer/internal/storage"
)

// settingsResponse is the API shape of the settings singleton. Secrets are
// never echoed back; presence flags let the UI show whether they are set.
// The push config is returned decrypted so the channel form can be edited.
type settingsResponse struct {
	*models.AppSettings
	HasGithubToken bool           `json:"has_github_token"`
	HasAIAPIKey    bool           `json:"has_ai_api_key"`
	PushConfig     map[string]any `json:"push_config"`
}

// settingsPatch is the PATCH request body. Absent fields are left unchanged.
// An explicit empty string clears the corresponding secret.
type settingsPatch struct {
	GithubAccessToken       *string         `json:"github_access_token"`
	IsBackgroundSyncEnabled *bool           `json:"is_background_sync_enabled"`
	SyncIntervalHours       *int            `json:"sync_interval_hours"`
	IsPushEnabled           *bool           `json:"is_push_enabled"`
	PushChannel             *string         `json:"push_channel"`
	PushConfig              *map[string]any `json:"push_config"`
	IsDNDEnabled            *bool           `json:"is_dnd_enabled"`
	DNDStartHour            *int            `json:"dnd_start_hour"`
	DNDEndHour              *int            `json:"dnd_end_hour"`
	IsPushProxyEnabled      *bool           `json:"is_push_proxy_enabled"`
	UILanguage              *string         `json:"ui_language"`
	IsAIEnabled             *bool           `json:"is_ai_enabled"`
	IsAutoAnalysisEnabled   *bool           `json:"is_auto_analysis_enabled"`
	AIBaseURL               *string         `json:"ai_base_url"`
	AIAPIKey                *string         `json:"ai_api_key"`
	AIModel                 *string         `json:"ai_model"`
	AIConcurrency           *int            `json:"ai_concurrency"`
}

// settingsPatchResponse extends the settings payload with the outcome of the
// test push triggered by a push channel or config change.
type settingsPatchResponse struct {
	settingsResponse
	TestPushStatus string `json:"test_push_status,omitempty"`
	TestPushError  string `json:"test_push_error,omitempty"`
}

// GetSettings handles GET /api/settings.
func GetSettings(store *storage.Store, box *secrets.Box) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := store.GetSettings(r.Context())
		if err != nil {
			slog.Error("reading settings", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to read settings")
			return
		}
		writeJSON(w, http.StatusOK, toSettingsResponse(settings, box))
	}
}

// UpdateSettings handles PATCH /api/settings. Secret fields are encrypted
// before they reach the database. When the push channel or its config changes
// while push is enabled, a test notification is sent and its outcome reported
// alongside the saved settings.
func UpdateSettings(store *storage.Store, box *secrets.Box, proxyURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var patch settingsPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if msg := validatePatch(&patch); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		update, err := buildUpdate(&patch, box)
		if err != nil {
			slog.Error("encrypting settings", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to encrypt settings")
			return
		}

		settings, err := store.UpdateSettings(ctx, update)
		if err != nil {
			slog.Error("updating settings", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to update settings")
			return
		}

		resp := settingsPatchResponse{settingsResponse: toSettingsResponse(settings, box)}

		pushTouched := patch.PushChannel != nil || patch.PushConfig != nil || isEnablingPush(&patch)
		if settings.IsPushEnabled && pushTouched {
			resp.TestPushStatus, resp.TestPushError = sendTestPush(ctx, settings, box, proxyURL)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// ResetFailedPushCount handles POST /api/settings/reset-failed-push.
func ResetFailedPushCount(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.ResetFailedPushCount(r.Context()); err != nil {
			slog.Error("resetting failed push count", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to reset counter")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"failed_push_count": 0})
	}
}

// UpdateTagsOrder handles PUT /api/settings/tags-order.
func UpdateTagsOrder(store *storage.Store) http.HandlerFunc {
	return updateOrder(store.UpdateTagsOrder, "tags_order")
}

// UpdateLanguagesOrder handles PUT /api/settings/languages-order.
func UpdateLanguagesOrder(store *storage.Store) http.HandlerFunc {
	return updateOrder(store.UpdateLanguagesOrder, "languages_order")
}

func updateOrder(save func(context.Context, []string) error, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Order []string `json:"order"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if err := save(r.Context(), body.Order); err != nil {
			slog.Error("updating order", "field", field, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to update order")
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"order": body.Order})
	}
}

func toSettingsResponse(settings *models.AppSettings, box *secrets.Box) settingsResponse {
	resp := settingsResponse{
		AppSettings:    settings,
		HasGithubToken: settings.GithubAccessToken != "",
		HasAIAPIKey:    settings.AIAPIKey != "",
		PushConfig:     map[string]any{},
	}
	if settings.PushConfig != "" {
		raw, err := box.Decrypt(settings.PushConfig)
		if err != nil {
			slog.Error("decrypting push config for response", "error", err)
			return resp
		}
		if err := json.Unmarshal([]byte(raw), &resp.PushConfig); err != nil {
			slog.Error("parsing push config for response", "error", err)
		}
	}
	return resp
}

func validatePatch(p *settingsPatch) string {
	if p.SyncIntervalHours != nil && (*p.SyncIntervalHours < 1 || *p.SyncIntervalHours > 168) {
		return "sync_interval_hours must be between 1 and 168"
	}
	if p.DNDStartHour != nil && (*p.DNDStartHour < 0 || *p.DNDStartHour > 23) {
		return "dnd_start_hour must be between 0 and 23"
	}
	if p.DNDEndHour != nil && (*p.DNDEndHour < 0 || *p.DNDEndHour > 23) {
		return "dnd_end_hour must be between 0 and 23"
	}
	if p.UILanguage != nil && *p.UILanguage != "zh" && *p.UILanguage != "en" {
		return "ui_language must be zh or en"
	}
	if p.AIConcurrency != nil && (*p.AIConcurrency < 1 || *p.AIConcurrency > 5) {
		return "ai_concurrency must be between 1 and 5"
	}
	if p.PushChannel != nil && *p.PushChannel != "" && !notify.KnownChannel(*p.PushChannel) {
		return "unknown push_channel"
	}
	return ""
}

func buildUpdate(p *settingsPatch, box *secrets.Box) (storage.SettingsUpdate, error) {
	u := storage.SettingsUpdate{
		IsBackgroundSyncEnabled: p.IsBackgroundSyncEnabled,
		SyncIntervalHours:       p.SyncIntervalHours,
		IsPushEnabled:           p.IsPushEnabled,
		PushChannel:             p.PushChannel,
		IsDNDEnabled:            p.IsDNDEnabled,
		DNDStartHour:            p.DNDStartHour,
		DNDEndHour:              p.DNDEndHour,
		IsPushProxyEnabled:      p.IsPushProxyEnabled,
		UILanguage:              p.UILanguage,
		IsAIEnabled:             p.IsAIEnabled,
		IsAutoAnalysisEnabled:   p.IsAutoAnalysisEnabled,
		AIBaseURL:               p.AIBaseURL,
		AIModel:                 p.AIModel,
		AIConcurrency:           p.AIConcurrency,
	}

	if p.GithubAccessToken != nil {
		enc, err := encryptValue(box, *p.GithubAccessToken)
		if err != nil {
			return u, err
		}
		u.GithubAccessToken = &enc
	}
	if p.AIAPIKey != nil {
		enc, err := encryptValue(box, *p.AIAPIKey)
		if err != nil {
			return u, err
		}
		u.AIAPIKey = &enc
	}
	if p.PushConfig != nil {
		raw, err := json.Marshal(*p.PushConfig)
		if err != nil {
			return u, err
		}
		enc, err := encryptValue(box, string(raw))
		if err != nil {
			return u, err
		}
		u.PushConfig = &enc
	}
	return u, nil
}

// encryptValue encrypts a secret for storage. Empty stays empty so that an
// explicit empty string clears the stored value.
func encryptValue(box *secrets.Box, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return box.Encrypt(plaintext)
}

func isEnablingPush(p *settingsPatch) bool {
	return p.IsPushEnabled != nil && *p.IsPushEnabled
}

// sendTestPush fires one test notification through the freshly saved channel
// and reports the outcome without failing the settings update.
func sendTestPush(ctx context.Context, settings *models.AppSettings, box *secrets.Box, proxyURL string) (status, detail string) {
	n, reason := notify.Resolve(settings, box, proxyURL)
	if n == nil {
		return "failed", reason
	}
	msg := notify.TestMessage(settings.UILanguage)
	if err := notify.SendTestWithRetry(ctx, n, msg); err != nil {
		slog.Warn("test push failed", "channel", n.Name(), "error", err)
		return "failed", err.Error()
	}
	return "success", ""
}
