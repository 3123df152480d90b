// Package scheduler drives the periodic background sync loop: fetching the
// remote starred collection, applying the diff, pushing notifications for
// favorite repos, and kicking off automatic AI analysis.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/xy2yp/stargazer/internal/ai"
	"github.com/xy2yp/stargazer/internal/github"
	"github.com/xy2yp/stargazer/internal/models"
	"github.com/xy2yp/stargazer/internal/notify"
	"github.com/xy2yp/stargazer/internal/secrets"
	"github.com/xy2yp/stargazer/internal/storage"
	syncsvc "github.com/xy2yp/stargazer/internal/sync"
)

// fallbackDelay is used when settings cannot be read, so a broken database
// does not turn the loop into a busy spin.
const fallbackDelay = 2 * time.Hour

// manualSyncTimeout bounds a manually triggered sync, which runs detached
// from any request context.
const manualSyncTimeout = 30 * time.Minute

// ErrSyncInProgress is returned by TriggerSync while another sync is running.
var ErrSyncInProgress = errors.New("a sync is already running")

// GitHub is the slice of the GitHub client the scheduler needs.
type GitHub interface {
	syncsvc.StarFetcher
	RecentCommitMessages(ctx context.Context, fullName string, since time.Time) ([]string, error)
}

// Scheduler owns the background sync loop. Sync cycles are fault isolated:
// any error is logged and the loop keeps running.
type Scheduler struct {
	store    *storage.Store
	box      *secrets.Box
	syncSvc  *syncsvc.Service
	pipeline *ai.Pipeline
	proxyURL string

	initialDelay time.Duration
	syncing      atomic.Bool

	// jitter spreads wake-ups after a quiet window so restarts do not all
	// sync at the same second. A field so tests can pin it.
	jitter func() time.Duration

	newClient func(token string) GitHub
}

// New creates a Scheduler with production defaults.
func New(store *storage.Store, box *secrets.Box, syncSvc *syncsvc.Service, pipeline *ai.Pipeline, proxyURL string, initialDelay time.Duration) *Scheduler {
	return &Scheduler{
		store:        store,
		box:          box,
		syncSvc:      syncSvc,
		pipeline:     pipeline,
		proxyURL:     proxyURL,
		initialDelay: initialDelay,
		jitter: func() time.Duration {
			return time.Duration(1+rand.IntN(10)) * time.Second
		},
		newClient: func(token string) GitHub {
			return github.NewClient(token, github.NewHTTPClient(proxyURL))
		},
	}
}

// Run blocks until ctx is canceled, running one sync cycle per interval.
// The first cycle runs right after the initial delay; cancellation
// interrupts both the sleep and an in-flight cycle.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler starting", "initial_delay", s.initialDelay)
	if err := sleepCtx(ctx, s.initialDelay); err != nil {
		return
	}

	for {
		s.RunCycle(ctx)
		delay := s.nextDelay(ctx, time.Now())
		slog.Debug("scheduler sleeping", "delay", delay)
		if err := sleepCtx(ctx, delay); err != nil {
			return
		}
	}
}

// nextDelay computes how long to sleep before the next cycle attempt. Inside
// the quiet window it sleeps until the window ends plus a small jitter.
func (s *Scheduler) nextDelay(ctx context.Context, now time.Time) time.Duration {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		slog.Error("reading settings for schedule", "error", err)
		return fallbackDelay
	}

	if settings.IsBackgroundSyncEnabled && settings.IsDNDEnabled &&
		InQuietHours(now, settings.DNDStartHour, settings.DNDEndHour) {
		return untilQuietEnd(now, settings.DNDEndHour) + s.jitter()
	}

	hours := settings.SyncIntervalHours
	if hours < 1 {
		hours = 1
	}
	return time.Duration(hours) * time.Hour
}

// RunCycle executes one scheduled sync cycle, honoring the enabled flag and
// the quiet window. Errors are logged, never propagated; the loop carries on.
func (s *Scheduler) RunCycle(ctx context.Context) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		slog.Error("sync cycle: reading settings", "error", err)
		return
	}
	if !settings.IsBackgroundSyncEnabled {
		slog.Debug("background sync disabled, skipping cycle")
		return
	}
	if settings.IsDNDEnabled && InQuietHours(time.Now(), settings.DNDStartHour, settings.DNDEndHour) {
		slog.Debug("inside quiet hours, skipping cycle")
		return
	}

	if !s.syncing.CompareAndSwap(false, true) {
		slog.Debug("sync already running, skipping cycle")
		return
	}
	defer s.syncing.Store(false)

	if err := s.syncOnce(ctx); err != nil {
		slog.Error("sync cycle failed", "error", err)
	}
}

// TriggerSync starts a manual sync in the background, bypassing the enabled
// flag and the quiet window. Only one sync runs at a time.
func (s *Scheduler) TriggerSync() error {
	if !s.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	go func() {
		defer s.syncing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), manualSyncTimeout)
		defer cancel()
		if err := s.syncOnce(ctx); err != nil {
			slog.Error("manual sync failed", "error", err)
		}
	}()
	return nil
}

// Syncing reports whether a sync, scheduled or manual, is in flight.
func (s *Scheduler) Syncing() bool {
	return s.syncing.Load()
}

// syncOnce runs one full sync: fetch, diff, notify, commit, auto analysis.
// All repo mutations and failed-push counter increments commit on a single
// transaction; notifications go out before that commit so their failures are
// counted in it.
func (s *Scheduler) syncOnce(ctx context.Context) error {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}

	token, err := s.box.Decrypt(settings.GithubAccessToken)
	if err != nil {
		return fmt.Errorf("decrypting github token: %w", err)
	}
	if token == "" {
		return errors.New("github access token not configured")
	}

	client := s.newClient(token)
	result, err := s.syncSvc.Run(ctx, client)
	if err != nil {
		if errors.Is(err, github.ErrInvalidToken) {
			s.notifyTokenInvalid(ctx)
		}
		return err
	}

	// Push preferences may have changed while the fetch was in flight.
	settings, err = s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("re-reading settings: %w", err)
	}

	failedPushes := s.pushUpdates(ctx, client, settings, result)

	if err := s.commit(ctx, result, failedPushes); err != nil {
		return fmt.Errorf("committing changes: %w", err)
	}
	s.syncSvc.MarkSuccess()
	slog.Info("sync committed",
		"added", len(result.ToAdd),
		"updated", len(result.ToUpdate),
		"removed", len(result.ToRemoveIDs),
		"failed_pushes", failedPushes,
	)

	if settings.IsAIEnabled && settings.IsAutoAnalysisEnabled && s.pipeline != nil {
		if _, err := s.pipeline.Start(ctx, ai.ModeAuto, result.UpdatedIDs()); err != nil {
			if errors.Is(err, ai.ErrAlreadyRunning) {
				slog.Info("skipping auto analysis, summary task already running")
			} else {
				slog.Error("auto analysis failed", "error", err)
			}
		}
	}
	return nil
}

// pushUpdates notifies about substantively updated favorite repos and
// returns the number of pushes that failed. Commit message enrichment is
// best effort; a failed lookup never blocks the notification.
func (s *Scheduler) pushUpdates(ctx context.Context, client GitHub, settings *models.AppSettings, result *syncsvc.Result) int {
	favorites := make([]*models.Repo, 0, len(result.Substantive))
	for _, repo := range result.Substantive {
		if repo.IsFavorite() {
			favorites = append(favorites, repo)
		}
	}
	if len(favorites) == 0 {
		return 0
	}

	n, reason := notify.Resolve(settings, s.box, s.proxyURL)
	if n == nil {
		slog.Debug("skipping update notifications", "reason", reason)
		return 0
	}

	lang := settings.UILanguage
	messages := make([]notify.Message, 0, len(favorites))
	for _, repo := range favorites {
		var commits []string
		if since, ok := parseSince(result.PrevPushedAt[repo.ID]); ok {
			var err error
			commits, err = client.RecentCommitMessages(ctx, repo.FullName, since)
			if err != nil {
				slog.Warn("fetching recent commits", "repo", repo.FullName, "error", err)
				commits = nil
			}
		}
		messages = append(messages, notify.UpdateMessage(repo, commits, lang))
	}

	return notify.Dispatch(ctx, n, messages)
}

// commit applies the staged diff and the failed-push increments atomically.
func (s *Scheduler) commit(ctx context.Context, result *syncsvc.Result, failedPushes int) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.store.ApplySyncTx(ctx, tx, result.ToAdd, result.ToUpdate, result.ToRemoveIDs); err != nil {
		return err
	}
	for i := 0; i < failedPushes; i++ {
		if err := s.store.IncrementFailedPushCountTx(ctx, tx); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Scheduler) notifyTokenInvalid(ctx context.Context) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return
	}
	n, reason := notify.Resolve(settings, s.box, s.proxyURL)
	if n == nil {
		slog.Debug("skipping token notification", "reason", reason)
		return
	}
	notify.Dispatch(ctx, n, []notify.Message{
		notify.AIErrorMessage("github_token_invalid", settings.UILanguage),
	})
}

func parseSince(pushedAt string) (time.Time, bool) {
	if pushedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, pushedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
