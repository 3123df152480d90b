package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xy2yp/stargazer/internal/models"
)

const repoColumns = `id, name, full_name, owner_login, owner_avatar_url, html_url,
	description, language, stargazers_count, pushed_at, starred_at,
	alias, notes, tags, ai_summary, analyzed_at, analysis_failed, readme_sha`

// ListRepos returns every mirrored repo, ordered by starred_at descending so
// the most recently starred repos come first.
func (s *Store) ListRepos(ctx context.Context) ([]*models.Repo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repos ORDER BY starred_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing repos: %w", err)
	}
	defer rows.Close()

	return collectRepos(rows)
}

// ListReposByIDs returns the repos matching the given ids. Missing ids are
// silently skipped.
func (s *Store) ListReposByIDs(ctx context.Context, ids []int64) ([]*models.Repo, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repos WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing repos by ids: %w", err)
	}
	defer rows.Close()

	return collectRepos(rows)
}

// ListUnanalyzedRepos returns repos whose analyzed_at is NULL: never analyzed,
// or previously marked as a retryable analysis failure.
func (s *Store) ListUnanalyzedRepos(ctx context.Context) ([]*models.Repo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repos WHERE analyzed_at IS NULL ORDER BY starred_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing unanalyzed repos: %w", err)
	}
	defer rows.Close()

	return collectRepos(rows)
}

// GetRepo returns the repo with the given id.
// Returns nil, ErrNotFound if no matching row exists.
func (s *Store) GetRepo(ctx context.Context, id int64) (*models.Repo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repos WHERE id = ?`, id)

	repo, err := scanRepo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting repo %d: %w", id, err)
	}
	return repo, nil
}

// ApplySyncTx stages one reconciliation cycle's mutations on the given
// transaction: delete the removed ids, insert the new repos, and write the
// synced fields of the updated ones. User-editable and analysis fields are
// never touched by a sync update. Nothing is committed here; the caller owns
// the transaction boundary.
func (s *Store) ApplySyncTx(ctx context.Context, tx *sql.Tx, toAdd []models.Repo, toUpdate []*models.Repo, toRemoveIDs []int64) error {
	if len(toRemoveIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(toRemoveIDs)), ",")
		args := make([]any, len(toRemoveIDs))
		for i, id := range toRemoveIDs {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM repos WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("deleting repos: %w", err)
		}
	}

	for _, repo := range toAdd {
		tags, err := json.Marshal(repo.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags for repo %d: %w", repo.ID, err)
		}
		if repo.Tags == nil {
			tags = []byte("[]")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO repos (id, name, full_name, owner_login, owner_avatar_url, html_url,
				description, language, stargazers_count, pushed_at, starred_at, tags)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			repo.ID, repo.Name, repo.FullName, repo.OwnerLogin, repo.OwnerAvatarURL,
			repo.HTMLURL, nullableString(repo.Description), nullableString(repo.Language),
			repo.StargazersCount, repo.PushedAt, repo.StarredAt, string(tags),
		); err != nil {
			return fmt.Errorf("inserting repo %d: %w", repo.ID, err)
		}
	}

	for _, repo := range toUpdate {
		if _, err := tx.ExecContext(ctx,
			`UPDATE repos SET name = ?, full_name = ?, owner_login = ?, owner_avatar_url = ?,
				html_url = ?, description = ?, language = ?, stargazers_count = ?,
				pushed_at = ?, starred_at = ?
			 WHERE id = ?`,
			repo.Name, repo.FullName, repo.OwnerLogin, repo.OwnerAvatarURL,
			repo.HTMLURL, nullableString(repo.Description), nullableString(repo.Language),
			repo.StargazersCount, repo.PushedAt, repo.StarredAt, repo.ID,
		); err != nil {
			return fmt.Errorf("updating repo %d: %w", repo.ID, err)
		}
	}

	return nil
}

// RepoDetailsUpdate carries a partial update of the user-editable repo
// fields. Nil fields are left unchanged.
type RepoDetailsUpdate struct {
	Alias *string
	Notes *string
	Tags  *[]string
}

// UpdateRepoDetails applies a partial update of alias, notes, and tags, and
// returns the updated repo. Returns ErrNotFound if the repo does not exist.
func (s *Store) UpdateRepoDetails(ctx context.Context, id int64, u RepoDetailsUpdate) (*models.Repo, error) {
	repo, err := s.GetRepo(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.Alias != nil {
		repo.Alias = *u.Alias
	}
	if u.Notes != nil {
		repo.Notes = *u.Notes
	}
	if u.Tags != nil {
		repo.Tags = *u.Tags
	}

	tags, err := json.Marshal(repo.Tags)
	if err != nil {
		return nil, fmt.Errorf("encoding tags for repo %d: %w", id, err)
	}
	if repo.Tags == nil {
		tags = []byte("[]")
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE repos SET alias = ?, notes = ?, tags = ? WHERE id = ?`,
		nullableString(repo.Alias), nullableString(repo.Notes), string(tags), id,
	); err != nil {
		return nil, fmt.Errorf("updating repo %d details: %w", id, err)
	}

	return repo, nil
}

// SetAnalysisSuccess records a successful analysis outcome: the summary (may
// be empty when the repo has no README), the analysis timestamp, and the
// README revision marker. Committed immediately.
func (s *Store) SetAnalysisSuccess(ctx context.Context, id int64, summary, readmeSHA string) error {
	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	if _, err := s.db.ExecContext(ctx,
		`UPDATE repos SET ai_summary = ?, analyzed_at = ?, analysis_failed = 0, readme_sha = ?
		 WHERE id = ?`,
		nullableString(summary), now, nullableString(readmeSHA), id,
	); err != nil {
		return fmt.Errorf("recording analysis success for repo %d: %w", id, err)
	}
	return nil
}

// SetAnalysisRetryableFailure marks a failed analysis that is eligible for a
// future re-run: the failed flag is set but no timestamp is written.
func (s *Store) SetAnalysisRetryableFailure(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE repos SET analysis_failed = 1, analyzed_at = NULL WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("recording retryable analysis failure for repo %d: %w", id, err)
	}
	return nil
}

// SetAnalysisTerminalFailure marks a failed analysis that must not be retried
// automatically: the failed flag and the timestamp are both written.
func (s *Store) SetAnalysisTerminalFailure(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	if _, err := s.db.ExecContext(ctx,
		`UPDATE repos SET analysis_failed = 1, analyzed_at = ? WHERE id = ?`, now, id,
	); err != nil {
		return fmt.Errorf("recording terminal analysis failure for repo %d: %w", id, err)
	}
	return nil
}

// ListTags returns the distinct user-facing tags across all repos, excluding
// the reserved favorite tag.
func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	repos, err := s.ListRepos(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var tags []string
	for _, repo := range repos {
		for _, tag := range repo.Tags {
			if tag == models.FavoriteTag || seen[tag] {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanRepo.
type scanner interface {
	Scan(dest ...any) error
}

func scanRepo(row scanner) (*models.Repo, error) {
	var (
		repo           models.Repo
		description    sql.NullString
		language       sql.NullString
		alias          sql.NullString
		notes          sql.NullString
		tagsJSON       string
		aiSummary      sql.NullString
		analyzedAt     sql.NullString
		analysisFailed int
		readmeSHA      sql.NullString
	)

	if err := row.Scan(
		&repo.ID, &repo.Name, &repo.FullName, &repo.OwnerLogin, &repo.OwnerAvatarURL,
		&repo.HTMLURL, &description, &language, &repo.StargazersCount,
		&repo.PushedAt, &repo.StarredAt, &alias, &notes, &tagsJSON,
		&aiSummary, &analyzedAt, &analysisFailed, &readmeSHA,
	); err != nil {
		return nil, err
	}

	repo.Description = description.String
	repo.Language = language.String
	repo.Alias = alias.String
	repo.Notes = notes.String
	repo.AISummary = aiSummary.String
	repo.AnalysisFailed = analysisFailed != 0
	repo.ReadmeSHA = readmeSHA.String

	if analyzedAt.Valid {
		repo.AnalyzedAt = parseTimePtr(&analyzedAt.String)
	}

	repo.Tags = []string{}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &repo.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
	}

	return &repo, nil
}

// collectRepos drains rows into a slice. The result is never nil so an
// empty collection serializes as an empty JSON array.
func collectRepos(rows *sql.Rows) ([]*models.Repo, error) {
	repos := []*models.Repo{}
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning repo: %w", err)
		}
		repos = append(repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating repos: %w", err)
	}
	return repos, nil
}
