package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xy2yp/stargazer/internal/i18n"
	"github.com/xy2yp/stargazer/internal/models"
)

// Message is one title/content pair ready for dispatch.
type Message struct {
	Title   string
	Content string
}

// UpdateMessage renders the localized notification for a substantively
// updated repo. Recent commit messages, when available, are appended as a
// bullet list; their absence degrades gracefully.
func UpdateMessage(repo *models.Repo, commits []string, lang string) Message {
	locale := i18n.Get(lang)

	description := repo.Description
	if description == "" {
		description = "N/A"
	}

	replacer := strings.NewReplacer(
		"{repo_name}", repo.Name,
		"{repo_full_name}", repo.FullName,
		"{repo_description}", description,
		"{stargazers_count}", strconv.Itoa(repo.StargazersCount),
		"{pushed_at}", formatPushedAt(repo.PushedAt),
		"{repo_html_url}", repo.HTMLURL,
	)

	title := replacer.Replace(locale.Notification.Title)
	content := replacer.Replace(locale.Notification.Content)

	if len(commits) > 0 {
		var b strings.Builder
		b.WriteString(content)
		b.WriteString("\n\n")
		b.WriteString(locale.RecentCommitsHeader)
		for _, commit := range commits {
			b.WriteString("\n- ")
			b.WriteString(commit)
		}
		content = b.String()
	}

	return Message{Title: title, Content: content}
}

// TestMessage renders the localized test-push notification.
func TestMessage(lang string) Message {
	locale := i18n.Get(lang)
	return Message{Title: locale.TestPush.Title, Content: locale.TestPush.Content}
}

// AIErrorMessage renders the localized notice for an aborted AI batch. Known
// kinds: config_missing, github_token_missing, api_key_invalid,
// github_token_invalid.
func AIErrorMessage(kind, lang string) Message {
	locale := i18n.Get(lang)
	if template, ok := locale.AIErrors[kind]; ok {
		return Message{Title: template.Title, Content: template.Content}
	}
	return Message{
		Title:   locale.TestPush.Title,
		Content: fmt.Sprintf("AI summary failed: %s", kind),
	}
}

// formatPushedAt converts the ISO-8601 pushed_at value to local time for
// display. Unparsable values fall back to the raw string, or N/A when empty.
func formatPushedAt(pushedAt string) string {
	if pushedAt == "" {
		return "N/A"
	}
	t, err := time.Parse(time.RFC3339, pushedAt)
	if err != nil {
		return pushedAt
	}
	return t.Local().Format("2006-01-02 15:04:05 MST")
}
