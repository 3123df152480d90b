package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xy2yp/stargazer/internal/models"
)

const settingsColumns = `github_access_token, is_background_sync_enabled, sync_interval_hours,
	is_push_enabled, push_channel, push_config, is_dnd_enabled, dnd_start_hour,
	dnd_end_hour, is_push_proxy_enabled, failed_push_count, tags_order,
	languages_order, ui_language, is_ai_enabled, is_auto_analysis_enabled,
	ai_base_url, ai_api_key, ai_model, ai_concurrency`

// GetSettings returns the singleton settings row, creating it with defaults
// on first access. The operation is idempotent: exactly one row exists at
// all times.
func (s *Store) GetSettings(ctx context.Context) (*models.AppSettings, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO app_settings (id) VALUES (1)`); err != nil {
		return nil, fmt.Errorf("ensuring settings row: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM app_settings WHERE id = 1`)
	return scanSettings(row)
}

// SettingsUpdate carries a partial update of the user-updatable settings.
// Nil fields are left unchanged. Secret fields (GithubAccessToken,
// PushConfig, AIAPIKey) must already be encrypted by the caller; an empty
// string clears the stored value.
type SettingsUpdate struct {
	GithubAccessToken       *string
	IsBackgroundSyncEnabled *bool
	SyncIntervalHours       *int
	IsPushEnabled           *bool
	PushChannel             *string
	PushConfig              *string
	IsDNDEnabled            *bool
	DNDStartHour            *int
	DNDEndHour              *int
	IsPushProxyEnabled      *bool
	UILanguage              *string
	IsAIEnabled             *bool
	IsAutoAnalysisEnabled   *bool
	AIBaseURL               *string
	AIAPIKey                *string
	AIModel                 *string
	AIConcurrency           *int
}

// UpdateSettings applies a partial settings update and returns the updated
// row. Fields outside SettingsUpdate (notably the failed-push counter and the
// ordering lists) cannot be modified through this path.
func (s *Store) UpdateSettings(ctx context.Context, u SettingsUpdate) (*models.AppSettings, error) {
	// Ensure the row exists before updating.
	if _, err := s.GetSettings(ctx); err != nil {
		return nil, err
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if u.GithubAccessToken != nil {
		set("github_access_token", nullableString(*u.GithubAccessToken))
	}
	if u.IsBackgroundSyncEnabled != nil {
		set("is_background_sync_enabled", *u.IsBackgroundSyncEnabled)
	}
	if u.SyncIntervalHours != nil {
		set("sync_interval_hours", *u.SyncIntervalHours)
	}
	if u.IsPushEnabled != nil {
		set("is_push_enabled", *u.IsPushEnabled)
	}
	if u.PushChannel != nil {
		set("push_channel", nullableString(*u.PushChannel))
	}
	if u.PushConfig != nil {
		set("push_config", nullableString(*u.PushConfig))
	}
	if u.IsDNDEnabled != nil {
		set("is_dnd_enabled", *u.IsDNDEnabled)
	}
	if u.DNDStartHour != nil {
		set("dnd_start_hour", *u.DNDStartHour)
	}
	if u.DNDEndHour != nil {
		set("dnd_end_hour", *u.DNDEndHour)
	}
	if u.IsPushProxyEnabled != nil {
		set("is_push_proxy_enabled", *u.IsPushProxyEnabled)
	}
	if u.UILanguage != nil {
		set("ui_language", *u.UILanguage)
	}
	if u.IsAIEnabled != nil {
		set("is_ai_enabled", *u.IsAIEnabled)
	}
	if u.IsAutoAnalysisEnabled != nil {
		set("is_auto_analysis_enabled", *u.IsAutoAnalysisEnabled)
	}
	if u.AIBaseURL != nil {
		set("ai_base_url", nullableString(*u.AIBaseURL))
	}
	if u.AIAPIKey != nil {
		set("ai_api_key", nullableString(*u.AIAPIKey))
	}
	if u.AIModel != nil {
		set("ai_model", nullableString(*u.AIModel))
	}
	if u.AIConcurrency != nil {
		set("ai_concurrency", *u.AIConcurrency)
	}

	if len(sets) > 0 {
		query := "UPDATE app_settings SET "
		for i, clause := range sets {
			if i > 0 {
				query += ", "
			}
			query += clause
		}
		query += " WHERE id = 1"

		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("updating settings: %w", err)
		}
	}

	return s.GetSettings(ctx)
}

// IncrementFailedPushCountTx stages a failed-push counter increment on the
// given transaction, so it shares the sync cycle's commit boundary.
func (s *Store) IncrementFailedPushCountTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE app_settings SET failed_push_count = failed_push_count + 1 WHERE id = 1`,
	); err != nil {
		return fmt.Errorf("incrementing failed push count: %w", err)
	}
	return nil
}

// ResetFailedPushCount sets the failed-push counter back to zero. This is
// the only operation that may decrease the counter.
func (s *Store) ResetFailedPushCount(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE app_settings SET failed_push_count = 0 WHERE id = 1`,
	); err != nil {
		return fmt.Errorf("resetting failed push count: %w", err)
	}
	return nil
}

// UpdateTagsOrder replaces the custom tag ordering list.
func (s *Store) UpdateTagsOrder(ctx context.Context, order []string) error {
	return s.updateOrderColumn(ctx, "tags_order", order)
}

// UpdateLanguagesOrder replaces the custom language ordering list.
func (s *Store) UpdateLanguagesOrder(ctx context.Context, order []string) error {
	return s.updateOrderColumn(ctx, "languages_order", order)
}

func (s *Store) updateOrderColumn(ctx context.Context, column string, order []string) error {
	if order == nil {
		order = []string{}
	}
	encoded, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", column, err)
	}

	if _, err := s.GetSettings(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE app_settings SET `+column+` = ? WHERE id = 1`, string(encoded),
	); err != nil {
		return fmt.Errorf("updating %s: %w", column, err)
	}
	return nil
}

func scanSettings(row *sql.Row) (*models.AppSettings, error) {
	var (
		settings       models.AppSettings
		token          sql.NullString
		pushChannel    sql.NullString
		pushConfig     sql.NullString
		tagsOrder      string
		languagesOrder string
		aiBaseURL      sql.NullString
		aiAPIKey       sql.NullString
		aiModel        sql.NullString
	)

	if err := row.Scan(
		&token, &settings.IsBackgroundSyncEnabled, &settings.SyncIntervalHours,
		&settings.IsPushEnabled, &pushChannel, &pushConfig, &settings.IsDNDEnabled,
		&settings.DNDStartHour, &settings.DNDEndHour, &settings.IsPushProxyEnabled,
		&settings.FailedPushCount, &tagsOrder, &languagesOrder, &settings.UILanguage,
		&settings.IsAIEnabled, &settings.IsAutoAnalysisEnabled,
		&aiBaseURL, &aiAPIKey, &aiModel, &settings.AIConcurrency,
	); err != nil {
		return nil, fmt.Errorf("scanning settings: %w", err)
	}

	settings.GithubAccessToken = token.String
	settings.PushChannel = pushChannel.String
	settings.PushConfig = pushConfig.String
	settings.AIBaseURL = aiBaseURL.String
	settings.AIAPIKey = aiAPIKey.String
	settings.AIModel = aiModel.String

	settings.TagsOrder = []string{}
	if tagsOrder != "" {
		if err := json.Unmarshal([]byte(tagsOrder), &settings.TagsOrder); err != nil {
			return nil, fmt.Errorf("decoding tags_order: %w", err)
		}
	}
	settings.LanguagesOrder = []string{}
	if languagesOrder != "" {
		if err := json.Unmarshal([]byte(languagesOrder), &settings.LanguagesOrder); err != nil {
			return nil, fmt.Errorf("decoding languages_order: %w", err)
		}
	}

	return &settings, nil
}
