package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xy2yp/stargazer/internal/models"
	"github.com/xy2yp/stargazer/internal/storage"
)

// StarFetcher is the slice of the GitHub client the sync service depends on.
type StarFetcher interface {
	FetchAllStarred(ctx context.Context) ([]models.Repo, error)
}

// Service runs reconciliation passes and tracks the last successful sync.
// That timestamp is process-scoped state: it resets on restart and is never
// persisted.
type Service struct {
	store *storage.Store

	mu          sync.Mutex
	lastSuccess time.Time
}

// NewService creates a sync Service backed by the given store.
func NewService(store *storage.Store) *Service {
	return &Service{store: store}
}

// Run fetches the remote starred collection, compares it against the local
// mirror, and returns the staged instructions. It performs no writes; the
// caller applies the result on its own transaction and calls MarkSuccess
// after committing.
func (s *Service) Run(ctx context.Context, client StarFetcher) (*Result, error) {
	remote, err := client.FetchAllStarred(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching starred repos: %w", err)
	}

	local, err := s.store.ListRepos(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing local repos: %w", err)
	}

	result := Diff(remote, local)
	slog.Info("diff complete",
		"to_add", len(result.ToAdd),
		"to_update", len(result.ToUpdate),
		"to_remove", len(result.ToRemoveIDs),
		"substantive", len(result.Substantive),
	)
	return result, nil
}

// MarkSuccess records the moment a sync cycle committed successfully.
func (s *Service) MarkSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSuccess = time.Now()
}

// LastSuccess returns the timestamp of the last committed sync in this
// process, and false if none has completed since startup.
func (s *Service) LastSuccess() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccess, !s.lastSuccess.IsZero()
}
