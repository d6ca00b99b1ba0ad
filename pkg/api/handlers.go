package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gerritevents/pkg/gerrit"
	"gerritevents/pkg/storage"
)

const maxListLimit = 500

// RefUpdatesHandler lists stored ref updates, newest first.
//
// Query parameters: project, ref_name (or a full ref), since (RFC 3339)
// and limit.
type RefUpdatesHandler struct {
	Store  storage.RefUpdateStore
	Logger *log.Logger
}

func (h *RefUpdatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	query := r.URL.Query()
	filter := storage.RefUpdateFilter{
		Project: strings.TrimSpace(query.Get("project")),
		RefName: refNameParam(query.Get("ref_name")),
		Limit:   100,
	}
	if raw := strings.TrimSpace(query.Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		since = since.UTC()
		filter.Since = &since
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}

	records, err := h.Store.ListRefUpdates(r.Context(), filter)
	if err != nil {
		http.Error(w, "list ref updates failed", http.StatusInternalServerError)
		if h.Logger != nil {
			h.Logger.Printf("list ref updates failed: %v", err)
		}
		return
	}
	writeJSON(w, records)
}

// LatestRefUpdateHandler returns the last stored update of one ref.
type LatestRefUpdateHandler struct {
	Store  storage.RefUpdateStore
	Logger *log.Logger
}

func (h *LatestRefUpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	project := strings.TrimSpace(r.URL.Query().Get("project"))
	refName := refNameParam(r.URL.Query().Get("ref_name"))
	if project == "" || refName == "" {
		http.Error(w, "missing project or ref_name", http.StatusBadRequest)
		return
	}

	record, err := h.Store.LatestRefUpdate(r.Context(), project, refName)
	if err != nil {
		http.Error(w, "ref update lookup failed", http.StatusInternalServerError)
		if h.Logger != nil {
			h.Logger.Printf("ref update lookup failed: %v", err)
		}
		return
	}
	if record == nil {
		http.Error(w, "ref update not found", http.StatusNotFound)
		return
	}
	writeJSON(w, record)
}

// refNameParam accepts either a short branch name or a refs/heads/ path.
func refNameParam(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), gerrit.RefsHeads)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
