// Package sync implements the reconciliation of the remote starred
// collection against the locally mirrored copy.
package sync

import (
	"sort"

	"github.com/xy2yp/stargazer/internal/models"
)

// Result holds the instructions produced by one reconciliation pass.
type Result struct {
	// ToAdd are remote repos absent locally, in remote order.
	ToAdd []models.Repo
	// ToUpdate are the local repos with at least one changed field, with
	// the changed fields already written in place. Unchanged repos are
	// omitted entirely.
	ToUpdate []*models.Repo
	// ToRemoveIDs are local ids absent remotely, ascending.
	ToRemoveIDs []int64
	// Substantive are the repos from ToUpdate whose change touched a
	// substantive field, making them notification-eligible.
	Substantive []*models.Repo
	// PrevPushedAt maps each updated repo id to its pushed_at value before
	// this pass, for querying change descriptions since that moment.
	PrevPushedAt map[int64]string
}

// UpdatedIDs returns the ids of every repo in ToUpdate.
func (r *Result) UpdatedIDs() []int64 {
	ids := make([]int64, len(r.ToUpdate))
	for i, repo := range r.ToUpdate {
		ids[i] = repo.ID
	}
	return ids
}

// Diff compares the remote collection against the local one and produces
// add/update/remove instructions. It is a pure transform: no I/O, no side
// effects beyond writing changed field values into the passed-in local
// repos. Running it again on its own output with an unchanged remote yields
// empty add/remove/substantive sets.
//
// A change to one of the substantive fields (name, full name, description,
// language, canonical URL, pushed_at) flags the repo as substantively
// updated. Star count and starred_at are always synced but never trigger
// the substantive flag.
func Diff(remote []models.Repo, local []*models.Repo) *Result {
	remoteByID := make(map[int64]*models.Repo, len(remote))
	for i := range remote {
		remoteByID[remote[i].ID] = &remote[i]
	}
	localByID := make(map[int64]*models.Repo, len(local))
	for _, repo := range local {
		localByID[repo.ID] = repo
	}

	result := &Result{PrevPushedAt: make(map[int64]string)}

	for i := range remote {
		if _, ok := localByID[remote[i].ID]; !ok {
			result.ToAdd = append(result.ToAdd, remote[i])
		}
	}

	var commonIDs []int64
	for _, repo := range local {
		if _, ok := remoteByID[repo.ID]; ok {
			commonIDs = append(commonIDs, repo.ID)
		} else {
			result.ToRemoveIDs = append(result.ToRemoveIDs, repo.ID)
		}
	}
	sort.Slice(result.ToRemoveIDs, func(i, j int) bool {
		return result.ToRemoveIDs[i] < result.ToRemoveIDs[j]
	})
	sort.Slice(commonIDs, func(i, j int) bool { return commonIDs[i] < commonIDs[j] })

	for _, id := range commonIDs {
		db := localByID[id]
		gh := remoteByID[id]

		prevPushedAt := db.PushedAt
		substantive := syncSubstantiveFields(db, gh)

		changed := substantive
		if db.StargazersCount != gh.StargazersCount {
			db.StargazersCount = gh.StargazersCount
			changed = true
		}
		if db.StarredAt != gh.StarredAt {
			db.StarredAt = gh.StarredAt
			changed = true
		}

		if !changed {
			continue
		}

		result.ToUpdate = append(result.ToUpdate, db)
		result.PrevPushedAt[id] = prevPushedAt
		if substantive {
			result.Substantive = append(result.Substantive, db)
		}
	}

	return result
}

// syncSubstantiveFields copies any differing substantive field from the
// remote record into the local one and reports whether anything changed.
func syncSubstantiveFields(db, gh *models.Repo) bool {
	changed := false

	if db.Name != gh.Name {
		db.Name = gh.Name
		changed = true
	}
	if db.FullName != gh.FullName {
		db.FullName = gh.FullName
		changed = true
	}
	if db.Description != gh.Description {
		db.Description = gh.Description
		changed = true
	}
	if db.Language != gh.Language {
		db.Language = gh.Language
		changed = true
	}
	if db.HTMLURL != gh.HTMLURL {
		db.HTMLURL = gh.HTMLURL
		changed = true
	}
	if db.PushedAt != gh.PushedAt {
		db.PushedAt = gh.PushedAt
		changed = true
	}

	return changed
}
