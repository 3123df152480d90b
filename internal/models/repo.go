package models

import "time"

// FavoriteTag is the reserved tag marking a repo as a favorite. Repos
// carrying it are the only ones eligible for update notifications, and it is
// excluded from user-facing tag listings.
const FavoriteTag = "_favorite"

// Repo represents one starred GitHub repository mirrored locally. The ID is
// assigned by GitHub and never reassigned. Timestamps synced from GitHub are
// kept as ISO-8601 strings, exactly as the API encodes them.
type Repo struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	FullName       string `json:"full_name"`
	OwnerLogin     string `json:"owner_login"`
	OwnerAvatarURL string `json:"owner_avatar_url"`
	HTMLURL        string `json:"html_url"`
	Description    string `json:"description,omitempty"`
	Language       string `json:"language,omitempty"`
	StargazersCount int   `json:"stargazers_count"`
	PushedAt       string `json:"pushed_at"`
	StarredAt      string `json:"starred_at"`

	// User-editable fields.
	Alias string   `json:"alias,omitempty"`
	Notes string   `json:"notes,omitempty"`
	Tags  []string `json:"tags"`

	// AI analysis fields. AnalyzedAt == nil means the repo has never been
	// analyzed, or its last failure is eligible for retry. ReadmeSHA is the
	// content revision marker used to detect README changes.
	AISummary      string     `json:"ai_summary,omitempty"`
	AnalyzedAt     *time.Time `json:"analyzed_at,omitempty"`
	AnalysisFailed bool       `json:"analysis_failed"`
	ReadmeSHA      string     `json:"readme_sha,omitempty"`
}

// IsFavorite reports whether the repo carries the reserved favorite tag.
func (r *Repo) IsFavorite() bool {
	for _, t := range r.Tags {
		if t == FavoriteTag {
			return true
		}
	}
	return false
}
