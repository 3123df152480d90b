package models

// AppSettings is the application's singleton configuration record. Exactly
// one row exists at all times; it is created lazily with defaults on first
// access. Secret fields (GithubAccessToken, PushConfig, AIAPIKey) are stored
// encrypted and must be decrypted by the secrets box before use.
type AppSettings struct {
	GithubAccessToken string `json:"-"`

	IsBackgroundSyncEnabled bool `json:"is_background_sync_enabled"`
	SyncIntervalHours       int  `json:"sync_interval_hours"`

	IsPushEnabled      bool   `json:"is_push_enabled"`
	PushChannel        string `json:"push_channel,omitempty"`
	PushConfig         string `json:"-"`
	IsDNDEnabled       bool   `json:"is_dnd_enabled"`
	DNDStartHour       int    `json:"dnd_start_hour"`
	DNDEndHour         int    `json:"dnd_end_hour"`
	IsPushProxyEnabled bool   `json:"is_push_proxy_enabled"`

	// FailedPushCount only increases, except via an explicit reset.
	FailedPushCount int `json:"failed_push_count"`

	TagsOrder      []string `json:"tags_order"`
	LanguagesOrder []string `json:"languages_order"`
	UILanguage     string   `json:"ui_language"`

	IsAIEnabled           bool   `json:"is_ai_enabled"`
	IsAutoAnalysisEnabled bool   `json:"is_auto_analysis_enabled"`
	AIBaseURL             string `json:"ai_base_url,omitempty"`
	AIAPIKey              string `json:"-"`
	AIModel               string `json:"ai_model,omitempty"`
	AIConcurrency         int    `json:"ai_concurrency"`
}
