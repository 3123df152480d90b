package i18n

import (
	"strings"
	"testing"
)

func TestGet_KnownLanguages(t *testing.T) {
	zh := Get("zh")
	en := Get("en")
	if zh == nil || en == nil {
		t.Fatal("expected both bundled locales to load")
	}
	if zh == en {
		t.Error("zh and en resolved to the same locale")
	}
	if !strings.Contains(zh.Notification.Title, "StarGazer") {
		t.Errorf("zh notification title = %q", zh.Notification.Title)
	}
}

func TestGet_UnknownFallsBackToDefault(t *testing.T) {
	if got := Get("fr"); got != Get(DefaultLanguage) {
		t.Error("unknown language did not fall back to the default locale")
	}
	if got := Get(""); got != Get(DefaultLanguage) {
		t.Error("empty language did not fall back to the default locale")
	}
}

// Every locale must carry the full set of placeholders and error kinds the
// rest of the code substitutes into, so a partial translation fails here
// instead of producing messages with missing pieces.
func TestLocales_Complete(t *testing.T) {
	notifPlaceholders := []string{
		"{repo_name}", "{repo_full_name}", "{repo_description}",
		"{stargazers_count}", "{pushed_at}", "{repo_html_url}",
	}
	errorKinds := []string{
		"config_missing", "github_token_missing",
		"api_key_invalid", "github_token_invalid",
	}

	for _, lang := range []string{"zh", "en"} {
		locale := Get(lang)

		combined := locale.Notification.Title + locale.Notification.Content
		for _, p := range notifPlaceholders {
			if !strings.Contains(combined, p) {
				t.Errorf("%s: notification template missing %s", lang, p)
			}
		}
		if locale.RecentCommitsHeader == "" {
			t.Errorf("%s: recent_commits_header is empty", lang)
		}
		if locale.TestPush.Title == "" || locale.TestPush.Content == "" {
			t.Errorf("%s: test_push template incomplete", lang)
		}
		for _, kind := range errorKinds {
			tmpl, ok := locale.AIErrors[kind]
			if !ok {
				t.Errorf("%s: ai_errors missing kind %q", lang, kind)
				continue
			}
			if tmpl.Title == "" || tmpl.Content == "" {
				t.Errorf("%s: ai_errors[%q] incomplete", lang, kind)
			}
		}
		for _, p := range []string{"{full_name}", "{readme_content}"} {
			if !strings.Contains(locale.AISummaryPrompt, p) {
				t.Errorf("%s: ai_summary_prompt missing %s", lang, p)
			}
		}
	}
}
