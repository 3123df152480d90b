package notify

import (
	"strings"
	"testing"

	"github.com/xy2yp/stargazer/internal/models"
)

func messageRepo() *models.Repo {
	return &models.Repo{
		ID:              1,
		Name:            "tool",
		FullName:        "owner/tool",
		HTMLURL:         "https://github.com/owner/tool",
		Description:     "a fine tool",
		StargazersCount: 321,
		PushedAt:        "2025-01-15T10:30:00Z",
	}
}

func TestUpdateMessage_SubstitutesPlaceholders(t *testing.T) {
	msg := UpdateMessage(messageRepo(), nil, "en")

	if !strings.Contains(msg.Title, "tool") {
		t.Errorf("title %q missing repo name", msg.Title)
	}
	for _, want := range []string{"owner/tool", "a fine tool", "321", "https://github.com/owner/tool"} {
		if !strings.Contains(msg.Content, want) {
			t.Errorf("content missing %q:\n%s", want, msg.Content)
		}
	}
	if strings.Contains(msg.Content, "{repo_") || strings.Contains(msg.Title, "{repo_") {
		t.Errorf("unsubstituted placeholder left in message:\n%s\n%s", msg.Title, msg.Content)
	}
}

func TestUpdateMessage_CommitsAppended(t *testing.T) {
	commits := []string{"fix parser crash", "add config flag"}
	msg := UpdateMessage(messageRepo(), commits, "en")

	if !strings.Contains(msg.Content, "Recent commits:") {
		t.Errorf("content missing commits header:\n%s", msg.Content)
	}
	for _, c := range commits {
		if !strings.Contains(msg.Content, "- "+c) {
			t.Errorf("content missing commit bullet %q:\n%s", c, msg.Content)
		}
	}

	// Without commits the section is absent entirely.
	msg = UpdateMessage(messageRepo(), nil, "en")
	if strings.Contains(msg.Content, "Recent commits:") {
		t.Errorf("commits header present without commits:\n%s", msg.Content)
	}
}

func TestUpdateMessage_EmptyDescription(t *testing.T) {
	repo := messageRepo()
	repo.Description = ""
	msg := UpdateMessage(repo, nil, "en")

	if !strings.Contains(msg.Content, "N/A") {
		t.Errorf("empty description not rendered as N/A:\n%s", msg.Content)
	}
}

func TestUpdateMessage_UnknownLanguageFallsBack(t *testing.T) {
	msg := UpdateMessage(messageRepo(), nil, "fr")
	// Default locale is Chinese.
	if !strings.Contains(msg.Content, "跃迁") {
		t.Errorf("fallback locale not used:\n%s", msg.Content)
	}
}

func TestAIErrorMessage(t *testing.T) {
	msg := AIErrorMessage("api_key_invalid", "en")
	if !strings.Contains(msg.Content, "API key") {
		t.Errorf("unexpected content: %q", msg.Content)
	}

	// Unknown kinds still produce a sendable message.
	msg = AIErrorMessage("something_else", "en")
	if msg.Title == "" || msg.Content == "" {
		t.Errorf("empty message for unknown kind: %+v", msg)
	}
}

func TestFormatPushedAt(t *testing.T) {
	if got := formatPushedAt(""); got != "N/A" {
		t.Errorf("empty = %q, want N/A", got)
	}
	if got := formatPushedAt("garbage"); got != "garbage" {
		t.Errorf("unparsable = %q, want raw value", got)
	}
	if got := formatPushedAt("2025-01-15T10:30:00Z"); !strings.Contains(got, "2025-01-1") {
		t.Errorf("parsed = %q, want local formatted date", got)
	}
}
