package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xy2yp/stargazer/internal/github"
	"github.com/xy2yp/stargazer/internal/models"
	"github.com/xy2yp/stargazer/internal/notify"
	"github.com/xy2yp/stargazer/internal/secrets"
	"github.com/xy2yp/stargazer/internal/storage"
)

// Candidate selection modes.
const (
	ModeAll        = "all"
	ModeUnanalyzed = "unanalyzed"
	ModeAuto       = "auto"
)

const (
	defaultBatchSize  = 50
	defaultGroupDelay = 20 * time.Second
	defaultBatchDelay = 60 * time.Second

	minConcurrency = 1
	maxConcurrency = 5
)

// ContentFetcher yields README content and its blob SHA for a repository.
// An empty content and SHA pair means the repository has no README.
type ContentFetcher interface {
	FetchReadme(ctx context.Context, fullName string) (content, sha string, err error)
}

// ReadmeEntry caches a fetched README so auto-mode revision checks do not
// fetch the same file twice.
type ReadmeEntry struct {
	Content string
	SHA     string
}

// Stats aggregates the outcome of one summary run.
type Stats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Pipeline runs summary batches against the configured AI backend. Each item
// outcome is persisted immediately, so an aborted run keeps everything that
// already finished.
type Pipeline struct {
	store *storage.Store
	box   *secrets.Box

	// Status tracks the single in-flight task for the status endpoint.
	Status *Tracker

	proxyURL string

	batchSize  int
	groupDelay time.Duration
	batchDelay time.Duration

	// Factories are fields so tests can substitute fakes.
	newFetcher    func(token string) ContentFetcher
	newSummarizer func(baseURL, apiKey, model, lang string) Summarizer
}

// NewPipeline creates a Pipeline with production defaults. proxyURL is
// applied to README fetches and to push notifications about fatal errors.
func NewPipeline(store *storage.Store, box *secrets.Box, proxyURL string) *Pipeline {
	return &Pipeline{
		store:      store,
		box:        box,
		Status:     &Tracker{},
		proxyURL:   proxyURL,
		batchSize:  defaultBatchSize,
		groupDelay: defaultGroupDelay,
		batchDelay: defaultBatchDelay,
		newFetcher: func(token string) ContentFetcher {
			return github.NewClient(token, github.NewHTTPClient(proxyURL))
		},
		newSummarizer: func(baseURL, apiKey, model, lang string) Summarizer {
			return NewClient(baseURL, apiKey, model, lang)
		},
	}
}

// Start selects candidates for the given mode and summarizes them. updatedIDs
// is only consulted in auto mode, where repositories whose README revision
// changed since their last analysis are re-summarized. Only one task may run
// at a time; a second call returns ErrAlreadyRunning.
func (p *Pipeline) Start(ctx context.Context, mode string, updatedIDs []int64) (Stats, error) {
	if err := p.Status.TryStart(0); err != nil {
		return Stats{}, err
	}
	defer p.Status.Finish()

	settings, err := p.store.GetSettings(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("loading settings: %w", err)
	}
	lang := settings.UILanguage

	token, err := p.box.Decrypt(settings.GithubAccessToken)
	if err != nil {
		slog.Error("decrypting github token", "error", err)
		token = ""
	}
	var fetcher ContentFetcher
	if token != "" {
		fetcher = p.newFetcher(token)
	}

	repos, cache, err := p.selectCandidates(ctx, mode, updatedIDs, fetcher)
	if err != nil {
		return Stats{}, err
	}
	if len(repos) == 0 {
		slog.Info("no repositories to summarize", "mode", mode)
		return Stats{}, nil
	}
	p.Status.SetTotal(len(repos))

	if settings.AIBaseURL == "" || settings.AIModel == "" {
		p.notifyError(ctx, settings, "config_missing", lang)
		return Stats{Total: len(repos)}, errors.New("ai base url or model not configured")
	}
	if token == "" {
		p.notifyError(ctx, settings, "github_token_missing", lang)
		return Stats{Total: len(repos)}, errors.New("github access token not configured")
	}

	apiKey, err := p.box.Decrypt(settings.AIAPIKey)
	if err != nil {
		return Stats{Total: len(repos)}, fmt.Errorf("decrypting ai api key: %w", err)
	}
	summarizer := p.newSummarizer(settings.AIBaseURL, apiKey, settings.AIModel, lang)

	concurrency := settings.AIConcurrency
	if concurrency < minConcurrency {
		concurrency = minConcurrency
	}
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}

	slog.Info("starting summary task",
		"mode", mode, "total", len(repos), "concurrency", concurrency)

	stats, err := p.run(ctx, repos, cache, summarizer, fetcher, concurrency)
	if err != nil {
		if kind := fatalKind(err); kind != "" {
			p.notifyError(ctx, settings, kind, lang)
		}
		return stats, err
	}
	slog.Info("summary task finished",
		"total", stats.Total, "success", stats.Success, "failed", stats.Failed)
	return stats, nil
}

// run walks the candidates in batches, each batch in concurrency-sized
// groups. A fatal error cancels the remaining items; everything already
// persisted stays persisted.
func (p *Pipeline) run(ctx context.Context, repos []*models.Repo, cache map[int64]ReadmeEntry, summarizer Summarizer, fetcher ContentFetcher, concurrency int) (Stats, error) {
	var success, failed atomic.Int64
	stats := func() Stats {
		return Stats{Total: len(repos), Success: int(success.Load()), Failed: int(failed.Load())}
	}

	for batchStart := 0; batchStart < len(repos); batchStart += p.batchSize {
		batch := repos[batchStart:min(batchStart+p.batchSize, len(repos))]

		for groupStart := 0; groupStart < len(batch); groupStart += concurrency {
			if err := ctx.Err(); err != nil {
				return stats(), err
			}
			group := batch[groupStart:min(groupStart+concurrency, len(batch))]

			g, gctx := errgroup.WithContext(ctx)
			for _, repo := range group {
				g.Go(func() error {
					ok, fatal := p.summarizeOne(gctx, summarizer, fetcher, cache, repo)
					if fatal != nil {
						return fatal
					}
					if ok {
						success.Add(1)
					} else {
						failed.Add(1)
					}
					p.Status.Record(ok)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return stats(), err
			}

			if groupStart+concurrency < len(batch) {
				if err := sleepCtx(ctx, p.groupDelay); err != nil {
					return stats(), err
				}
			}
		}

		if batchStart+p.batchSize < len(repos) {
			slog.Info("batch finished, pausing before next",
				"done", batchStart+len(batch), "total", len(repos))
			if err := sleepCtx(ctx, p.batchDelay); err != nil {
				return stats(), err
			}
		}
	}
	return stats(), nil
}

// summarizeOne processes a single repository and persists its outcome. It
// returns ok for the tally and a non-nil error only for fatal conditions
// that must abort the whole run.
func (p *Pipeline) summarizeOne(ctx context.Context, summarizer Summarizer, fetcher ContentFetcher, cache map[int64]ReadmeEntry, repo *models.Repo) (bool, error) {
	entry, cached := cache[repo.ID]
	if !cached {
		content, sha, err := fetcher.FetchReadme(ctx, repo.FullName)
		switch {
		case errors.Is(err, github.ErrInvalidToken):
			return false, err
		case err != nil:
			slog.Warn("fetching readme failed", "repo", repo.FullName, "error", err)
			p.persist(ctx, repo, p.store.SetAnalysisRetryableFailure)
			return false, nil
		}
		entry = ReadmeEntry{Content: content, SHA: sha}
	}

	if entry.Content == "" && entry.SHA == "" {
		// No README. Recorded as analyzed with an empty summary so the
		// repository is not retried every run.
		if err := p.store.SetAnalysisSuccess(ctx, repo.ID, "", ""); err != nil {
			slog.Error("persisting empty summary", "repo", repo.FullName, "error", err)
			return false, nil
		}
		return true, nil
	}

	summary, err := summarizer.SummarizeWithRetry(ctx, repo.FullName, entry.Content)
	switch {
	case err == nil:
		if perr := p.store.SetAnalysisSuccess(ctx, repo.ID, summary, entry.SHA); perr != nil {
			slog.Error("persisting summary", "repo", repo.FullName, "error", perr)
			return false, nil
		}
		return true, nil
	case errors.Is(err, ErrInvalidAPIKey):
		return false, err
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return false, err
	case errors.Is(err, ErrEmptyContent):
		slog.Warn("ai summary unusable", "repo", repo.FullName, "error", err)
		p.persist(ctx, repo, p.store.SetAnalysisTerminalFailure)
		return false, nil
	default:
		slog.Warn("ai summary failed", "repo", repo.FullName, "error", err)
		p.persist(ctx, repo, p.store.SetAnalysisRetryableFailure)
		return false, nil
	}
}

func (p *Pipeline) persist(ctx context.Context, repo *models.Repo, mark func(context.Context, int64) error) {
	if err := mark(ctx, repo.ID); err != nil {
		slog.Error("persisting analysis failure", "repo", repo.FullName, "error", err)
	}
}

// selectCandidates resolves the mode into a concrete repository list. In
// auto mode already-analyzed repositories from updatedIDs are checked for a
// README revision change; fetched content is cached for the summary phase.
func (p *Pipeline) selectCandidates(ctx context.Context, mode string, updatedIDs []int64, fetcher ContentFetcher) ([]*models.Repo, map[int64]ReadmeEntry, error) {
	cache := map[int64]ReadmeEntry{}

	switch mode {
	case ModeAll:
		repos, err := p.store.ListRepos(ctx)
		return repos, cache, err

	case ModeUnanalyzed:
		repos, err := p.store.ListUnanalyzedRepos(ctx)
		return repos, cache, err

	case ModeAuto:
		repos, err := p.store.ListUnanalyzedRepos(ctx)
		if err != nil {
			return nil, nil, err
		}
		seen := make(map[int64]bool, len(repos))
		for _, r := range repos {
			seen[r.ID] = true
		}

		if len(updatedIDs) == 0 {
			return repos, cache, nil
		}
		updated, err := p.store.ListReposByIDs(ctx, updatedIDs)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range updated {
			if seen[r.ID] || r.AnalyzedAt == nil {
				continue
			}
			if fetcher == nil {
				slog.Warn("skipping readme revision check, no github token", "repo", r.FullName)
				continue
			}
			content, sha, err := fetcher.FetchReadme(ctx, r.FullName)
			if err != nil {
				slog.Warn("readme revision check failed", "repo", r.FullName, "error", err)
				continue
			}
			if sha == "" || sha == r.ReadmeSHA {
				continue
			}
			cache[r.ID] = ReadmeEntry{Content: content, SHA: sha}
			repos = append(repos, r)
			seen[r.ID] = true
		}
		return repos, cache, nil

	default:
		return nil, nil, fmt.Errorf("unknown summary mode %q", mode)
	}
}

// notifyError pushes a localized notice about a fatal summary error. Failures
// here are logged and swallowed; the task error already carries the cause.
func (p *Pipeline) notifyError(ctx context.Context, settings *models.AppSettings, kind, lang string) {
	n, reason := notify.Resolve(settings, p.box, p.proxyURL)
	if n == nil {
		slog.Debug("skipping ai error notification", "reason", reason)
		return
	}
	notify.Dispatch(ctx, n, []notify.Message{notify.AIErrorMessage(kind, lang)})
}

func fatalKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAPIKey):
		return "api_key_invalid"
	case errors.Is(err, github.ErrInvalidToken):
		return "github_token_invalid"
	default:
		return ""
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
