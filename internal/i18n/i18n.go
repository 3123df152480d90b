// Package i18n provides localized message templates for notifications and
// AI prompts. Locale files are embedded at build time and parsed once at
// startup; lookups for unknown language codes fall back to the default
// language.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
)

// DefaultLanguage is used when a requested language code has no locale file.
const DefaultLanguage = "zh"

//go:embed locales/*.json
var localesFS embed.FS

// Template is a title/content message pair with {placeholder} tokens.
type Template struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Locale bundles every localized string for one language.
type Locale struct {
	Notification        Template            `json:"notification"`
	RecentCommitsHeader string              `json:"recent_commits_header"`
	TestPush            Template            `json:"test_push"`
	AIErrors            map[string]Template `json:"ai_errors"`
	AISummaryPrompt     string              `json:"ai_summary_prompt"`
}

var locales = mustLoadLocales()

// mustLoadLocales parses every embedded locale file. The files ship inside
// the binary, so a parse failure is a build defect and panics at startup.
func mustLoadLocales() map[string]*Locale {
	loaded := make(map[string]*Locale)

	err := fs.WalkDir(localesFS, "locales", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return err
		}

		data, err := localesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading locale file %s: %w", path, err)
		}

		var locale Locale
		if err := json.Unmarshal(data, &locale); err != nil {
			return fmt.Errorf("parsing locale file %s: %w", path, err)
		}

		code := strings.TrimSuffix(d.Name(), ".json")
		loaded[code] = &locale
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("i18n: loading embedded locales: %v", err))
	}

	if _, ok := loaded[DefaultLanguage]; !ok {
		panic(fmt.Sprintf("i18n: default locale %q is missing", DefaultLanguage))
	}

	return loaded
}

// Get returns the locale for the given language code, falling back to the
// default language when the code is absent.
func Get(lang string) *Locale {
	if locale, ok := locales[lang]; ok {
		return locale
	}
	return locales[DefaultLanguage]
}
