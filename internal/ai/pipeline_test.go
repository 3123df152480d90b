package ai

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xy2yp/stargazer/internal/models"
	"github.com/xy2yp/stargazer/internal/secrets"
	"github.com/xy2yp/stargazer/internal/storage"
)

type fakeFetcher struct {
	calls   atomic.Int64
	content string
	sha     string
	err     error
}

func (f *fakeFetcher) FetchReadme(_ context.Context, _ string) (string, string, error) {
	f.calls.Add(1)
	return f.content, f.sha, f.err
}

type fakeSummarizer struct {
	calls atomic.Int64
	fn    func(fullName string) (string, error)
}

func (f *fakeSummarizer) SummarizeWithRetry(_ context.Context, fullName, _ string) (string, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(fullName)
	}
	return "a summary that is long enough", nil
}

// newTestPipeline builds a Pipeline over an in-memory store with configured
// AI settings, zeroed delays, and the given fakes wired in.
func newTestPipeline(t *testing.T, fetcher *fakeFetcher, summarizer *fakeSummarizer) (*Pipeline, *storage.Store) {
	t.Helper()

	db, err := storage.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	store := storage.NewStore(db)

	box, err := secrets.NewBox("test secret")
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}

	token, _ := box.Encrypt("ghp_testtoken")
	baseURL := "https://ai.example.com/v1"
	model := "test-model"
	if _, err := store.UpdateSettings(context.Background(), storage.SettingsUpdate{
		GithubAccessToken: &token,
		AIBaseURL:         &baseURL,
		AIModel:           &model,
	}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	p := NewPipeline(store, box, "")
	p.groupDelay = 0
	p.batchDelay = 0
	p.newFetcher = func(string) ContentFetcher { return fetcher }
	p.newSummarizer = func(_, _, _, _ string) Summarizer { return summarizer }
	return p, store
}

func insertTestRepos(t *testing.T, store *storage.Store, repos ...models.Repo) {
	t.Helper()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := store.ApplySyncTx(ctx, tx, repos, nil, nil); err != nil {
		t.Fatalf("ApplySyncTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func pipelineRepo(id int64, name string) models.Repo {
	return models.Repo{
		ID:       id,
		Name:     name,
		FullName: "owner/" + name,
		// Distinct starred_at values keep listing order deterministic.
		StarredAt: fmt.Sprintf("2024-06-%02dT00:00:00Z", id),
	}
}

func TestPipeline_Start_Unanalyzed(t *testing.T) {
	fetcher := &fakeFetcher{content: "# readme", sha: "sha1"}
	summarizer := &fakeSummarizer{}
	p, store := newTestPipeline(t, fetcher, summarizer)

	insertTestRepos(t, store, pipelineRepo(1, "one"), pipelineRepo(2, "two"))

	stats, err := p.Start(context.Background(), ModeUnanalyzed, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stats != (Stats{Total: 2, Success: 2, Failed: 0}) {
		t.Errorf("stats = %+v", stats)
	}

	repo, err := store.GetRepo(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetRepo: %v", err)
	}
	if repo.AISummary != "a summary that is long enough" || repo.ReadmeSHA != "sha1" {
		t.Errorf("persisted outcome wrong: %+v", repo)
	}
	if repo.AnalyzedAt == nil || repo.AnalysisFailed {
		t.Errorf("flags wrong: analyzed_at=%v failed=%v", repo.AnalyzedAt, repo.AnalysisFailed)
	}

	status := p.Status.Snapshot()
	if status.Running || status.Total != 2 || status.Success != 2 {
		t.Errorf("final status = %+v", status)
	}
}

func TestPipeline_Start_AutoEmptyMakesNoCalls(t *testing.T) {
	fetcher := &fakeFetcher{}
	summarizer := &fakeSummarizer{}
	p, store := newTestPipeline(t, fetcher, summarizer)

	// One repo, already analyzed, not among the updated ids.
	insertTestRepos(t, store, pipelineRepo(1, "one"))
	if err := store.SetAnalysisSuccess(context.Background(), 1, "done", "sha"); err != nil {
		t.Fatalf("SetAnalysisSuccess: %v", err)
	}

	stats, err := p.Start(context.Background(), ModeAuto, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("stats = %+v, want all zero", stats)
	}
	if summarizer.calls.Load() != 0 || fetcher.calls.Load() != 0 {
		t.Errorf("backend touched for empty candidate set: summarizer=%d fetcher=%d",
			summarizer.calls.Load(), fetcher.calls.Load())
	}
}

func TestPipeline_Start_AutoReanalyzesChangedReadme(t *testing.T) {
	fetcher := &fakeFetcher{content: "# updated readme", sha: "sha-new"}
	summarizer := &fakeSummarizer{}
	p, store := newTestPipeline(t, fetcher, summarizer)
	ctx := context.Background()

	insertTestRepos(t, store, pipelineRepo(1, "one"), pipelineRepo(2, "two"))
	if err := store.SetAnalysisSuccess(ctx, 1, "old summary", "sha-old"); err != nil {
		t.Fatalf("SetAnalysisSuccess: %v", err)
	}
	if err := store.SetAnalysisSuccess(ctx, 2, "kept summary", "sha-new"); err != nil {
		t.Fatalf("SetAnalysisSuccess: %v", err)
	}

	// Both repos changed in the last sync, but only repo 1's README revision
	// differs from its recorded marker.
	stats, err := p.Start(ctx, ModeAuto, []int64{1, 2})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stats != (Stats{Total: 1, Success: 1}) {
		t.Errorf("stats = %+v, want exactly repo 1 re-analyzed", stats)
	}

	// The revision check's fetch is reused for the summary: one call per
	// candidate plus one for the unchanged repo's check.
	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("fetcher calls = %d, want 2 (one check per updated repo, content cached)", got)
	}

	repo, _ := store.GetRepo(ctx, 1)
	if repo.AISummary != "a summary that is long enough" || repo.ReadmeSHA != "sha-new" {
		t.Errorf("repo 1 not re-analyzed: %+v", repo)
	}
	repo, _ = store.GetRepo(ctx, 2)
	if repo.AISummary != "kept summary" {
		t.Errorf("repo 2 should be untouched: %+v", repo)
	}
}

func TestPipeline_Start_NoReadmeIsSuccessWithEmptySummary(t *testing.T) {
	fetcher := &fakeFetcher{} // 404: empty content and sha
	summarizer := &fakeSummarizer{}
	p, store := newTestPipeline(t, fetcher, summarizer)
	ctx := context.Background()

	insertTestRepos(t, store, pipelineRepo(1, "one"))

	stats, err := p.Start(ctx, ModeUnanalyzed, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stats != (Stats{Total: 1, Success: 1}) {
		t.Errorf("stats = %+v", stats)
	}
	if summarizer.calls.Load() != 0 {
		t.Error("summarizer called for a repo without a README")
	}

	repo, _ := store.GetRepo(ctx, 1)
	if repo.AnalyzedAt == nil || repo.AISummary != "" {
		t.Errorf("no-readme outcome wrong: %+v", repo)
	}
}

func TestPipeline_Start_EmptyContentIsTerminalFailure(t *testing.T) {
	fetcher := &fakeFetcher{content: "# readme", sha: "sha1"}
	summarizer := &fakeSummarizer{fn: func(string) (string, error) {
		return "", fmt.Errorf("wrapping: %w", ErrEmptyContent)
	}}
	p, store := newTestPipeline(t, fetcher, summarizer)
	ctx := context.Background()

	insertTestRepos(t, store, pipelineRepo(1, "one"))

	stats, err := p.Start(ctx, ModeUnanalyzed, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stats != (Stats{Total: 1, Failed: 1}) {
		t.Errorf("stats = %+v", stats)
	}

	repo, _ := store.GetRepo(ctx, 1)
	if !repo.AnalysisFailed || repo.AnalyzedAt == nil {
		t.Errorf("terminal failure flags wrong: %+v", repo)
	}
}

func TestPipeline_Start_FatalAbortKeepsCommittedOutcomes(t *testing.T) {
	fetcher := &fakeFetcher{content: "# readme", sha: "sha1"}
	summarizer := &fakeSummarizer{fn: func(fullName string) (string, error) {
		if fullName == "owner/two" {
			return "", ErrInvalidAPIKey
		}
		return "a summary that is long enough", nil
	}}
	p, store := newTestPipeline(t, fetcher, summarizer)
	ctx := context.Background()

	// The listing is starred_at DESC: give repo 1 the later date so it is
	// processed (and committed) before repo 2 raises the fatal error.
	one := pipelineRepo(1, "one")
	one.StarredAt = "2024-06-10T00:00:00Z"
	two := pipelineRepo(2, "two")
	two.StarredAt = "2024-06-01T00:00:00Z"
	insertTestRepos(t, store, one, two)

	_, err := p.Start(ctx, ModeUnanalyzed, nil)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("err = %v, want ErrInvalidAPIKey", err)
	}

	// Repo 1 finished before the fatal error and keeps its outcome.
	repo, _ := store.GetRepo(ctx, 1)
	if repo.AISummary != "a summary that is long enough" {
		t.Errorf("committed outcome lost on abort: %+v", repo)
	}

	if p.Status.Snapshot().Running {
		t.Error("tracker still running after abort")
	}
}

func TestPipeline_Start_AlreadyRunning(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeFetcher{}, &fakeSummarizer{})

	if err := p.Status.TryStart(1); err != nil {
		t.Fatalf("TryStart: %v", err)
	}
	defer p.Status.Finish()

	if _, err := p.Start(context.Background(), ModeAll, nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestPipeline_Start_UnknownMode(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeFetcher{}, &fakeSummarizer{})
	if _, err := p.Start(context.Background(), "sideways", nil); err == nil {
		t.Fatal("Start accepted an unknown mode")
	}
}

func TestTracker(t *testing.T) {
	tracker := &Tracker{}

	if err := tracker.TryStart(5); err != nil {
		t.Fatalf("TryStart: %v", err)
	}
	if err := tracker.TryStart(5); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second TryStart = %v, want ErrAlreadyRunning", err)
	}

	tracker.Record(true)
	tracker.Record(false)
	tracker.Finish()

	got := tracker.Snapshot()
	want := Status{Running: false, Total: 5, Success: 1, Failed: 1}
	if got != want {
		t.Errorf("Snapshot = %+v, want %+v", got, want)
	}

	// Finished counts stay readable until the next task claims the tracker.
	time.Sleep(time.Millisecond)
	if tracker.Snapshot() != want {
		t.Error("snapshot changed after finish")
	}
}
