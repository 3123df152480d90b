package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xy2yp/stargazer/internal/ai"
)

// StartSummary handles POST /api/summary/start. Manual runs accept the "all"
// and "unanalyzed" modes; "auto" is reserved for the sync scheduler. The task
// runs in the background and its progress is visible on the status endpoint.
func StartSummary(pipeline *ai.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if body.Mode != ai.ModeAll && body.Mode != ai.ModeUnanalyzed {
			writeError(w, http.StatusBadRequest, "mode must be all or unanalyzed")
			return
		}
		if pipeline.Status.Snapshot().Running {
			writeError(w, http.StatusConflict, "A summary task is already running")
			return
		}

		go func() {
			if _, err := pipeline.Start(context.Background(), body.Mode, nil); err != nil {
				if errors.Is(err, ai.ErrAlreadyRunning) {
					slog.Info("summary task already running")
					return
				}
				slog.Error("summary task failed", "mode", body.Mode, "error", err)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

// GetSummaryStatus handles GET /api/summary/status.
func GetSummaryStatus(pipeline *ai.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, pipeline.Status.Snapshot())
	}
}
