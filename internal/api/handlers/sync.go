package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/xy2yp/stargazer/internal/scheduler"
	syncsvc "github.com/xy2yp/stargazer/internal/sync"
)

// TriggerSync handles POST /api/sync. The sync runs in the background; the
// response only acknowledges the start.
func TriggerSync(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sched.TriggerSync(); err != nil {
			if errors.Is(err, scheduler.ErrSyncInProgress) {
				writeError(w, http.StatusConflict, "A sync is already running")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to start sync")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

// syncStatusResponse reflects process-scoped sync state. last_sync_time is
// null until the first sync of this process commits.
type syncStatusResponse struct {
	IsSyncing    bool    `json:"is_syncing"`
	LastSyncTime *string `json:"last_sync_time"`
}

// GetSyncStatus handles GET /api/sync/status.
func GetSyncStatus(sched *scheduler.Scheduler, svc *syncsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := syncStatusResponse{IsSyncing: sched.Syncing()}
		if t, ok := svc.LastSuccess(); ok {
			formatted := t.Format(time.RFC3339)
			resp.LastSyncTime = &formatted
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
