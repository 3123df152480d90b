package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/xy2yp/stargazer/internal/storage"
)

// GetRepos handles GET /api/repos. It returns the full mirrored collection
// in starred order.
func GetRepos(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repos, err := store.ListRepos(r.Context())
		if err != nil {
			slog.Error("listing repos", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list repos")
			return
		}
		writeJSON(w, http.StatusOK, repos)
	}
}

// repoPatch carries the user-editable repo fields. Absent fields are left
// unchanged; explicit empty values clear.
type repoPatch struct {
	Alias *string   `json:"alias"`
	Notes *string   `json:"notes"`
	Tags  *[]string `json:"tags"`
}

// maxAliasLen caps the user-supplied alias length in characters.
const maxAliasLen = 50

// UpdateRepo handles PATCH /api/repos/{id}. Only the local annotation fields
// (alias, notes, tags) can be changed; everything else is owned by sync.
func UpdateRepo(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		var patch repoPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if patch.Alias != nil && utf8.RuneCountInString(*patch.Alias) > maxAliasLen {
			writeError(w, http.StatusBadRequest, "alias must be at most 50 characters")
			return
		}

		repo, err := store.UpdateRepoDetails(r.Context(), id, storage.RepoDetailsUpdate{
			Alias: patch.Alias,
			Notes: patch.Notes,
			Tags:  patch.Tags,
		})
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Repo not found")
			return
		}
		if err != nil {
			slog.Error("updating repo", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to update repo")
			return
		}
		writeJSON(w, http.StatusOK, repo)
	}
}

// GetTags handles GET /api/tags. It returns every distinct user tag, with
// the reserved favorite marker filtered out.
func GetTags(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := store.ListTags(r.Context())
		if err != nil {
			slog.Error("listing tags", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list tags")
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
	}
}
