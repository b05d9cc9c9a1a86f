package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/salesync/internal/ingest"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// handleHealth reports whether the store answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.runs.Ping(ctx); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	ingest.Progress
	Percent int `json:"percent"`
}

// handleStatus returns the progress of the current run.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := s.tracker.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{Progress: p, Percent: p.Percent()})
}

type runResponse struct {
	ID               string    `json:"id"`
	FileName         string    `json:"file_name"`
	StartedAt        time.Time `json:"started_at"`
	DurationMS       int64     `json:"duration_ms"`
	DryRun           bool      `json:"dry_run"`
	TotalRows        int       `json:"total_rows"`
	ValidRecords     int       `json:"valid_records"`
	Errors           int       `json:"errors"`
	OrdersCreated    int       `json:"orders_created"`
	OrdersSkipped    int       `json:"orders_skipped"`
	LineItemsCreated int       `json:"line_items_created"`
	Status           string    `json:"status"`
}

// handleListRuns returns the most recent recorded runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	out := make([]runResponse, len(runs))
	for i, run := range runs {
		out[i] = runResponse{
			ID:               run.ID.String(),
			FileName:         run.FileName,
			StartedAt:        run.StartedAt,
			DurationMS:       run.Duration.Milliseconds(),
			DryRun:           run.DryRun,
			TotalRows:        run.TotalRows,
			ValidRecords:     run.ValidRecords,
			Errors:           run.Errors,
			OrdersCreated:    run.OrdersCreated,
			OrdersSkipped:    run.OrdersSkipped,
			LineItemsCreated: run.LineItemsCreated,
			Status:           run.Status,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
