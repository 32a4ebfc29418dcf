package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warblehq/warble/internal/archive"
	"github.com/warblehq/warble/internal/state"
)

// AppDeps holds dependencies for the local management router.
type AppDeps struct {
	Service *Service
	Archive *archive.Archive // optional; if nil, /history returns 404
}

// NewAppHandler builds the read-only management router used by the CLI:
// health, workflow listings, budget usage, and the action history.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/workflows", handleListWorkflows(deps))
	r.Get("/budget", handleBudget(deps))
	r.Get("/history", handleHistory(deps))

	return r
}

func handleListWorkflows(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typeFilter := state.WorkflowType(r.URL.Query().Get("type"))
		includeCompleted := r.URL.Query().Get("include_completed") == "true"

		workflows := deps.Service.Status(typeFilter, includeCompleted)
		if workflows == nil {
			workflows = []*state.Workflow{}
		}
		writeJSON(w, http.StatusOK, workflows)
	}
}

func handleBudget(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"summary": deps.Service.BudgetSummary()})
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Archive == nil {
			httpError(w, http.StatusNotFound, "action history is not enabled")
			return
		}
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				limit = n
			}
		}
		entries, err := deps.Archive.Recent(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "could not read action history")
			return
		}

		type entryJSON struct {
			ID         string `json:"id"`
			Kind       string `json:"kind"`
			TargetID   string `json:"target_id,omitempty"`
			WorkflowID string `json:"workflow_id,omitempty"`
			At         string `json:"at"`
		}
		out := make([]entryJSON, len(entries))
		for i, e := range entries {
			out[i] = entryJSON{
				ID:         e.ID,
				Kind:       e.Kind,
				TargetID:   e.TargetID,
				WorkflowID: e.WorkflowID,
				At:         e.At.UTC().Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
