package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"fs-delta-tracker/internal/database"
)

const (
	defaultScanLimit   = 50
	defaultChangeLimit = 1000
	maxLimit           = 10000
)

// ScanDetail is one scan run with its per-category change totals.
type ScanDetail struct {
	Scan   *database.ScanRun                            `json:"scan"`
	Totals map[database.ChangeType]database.ChangeTotal `json:"changeTotals"`
}

// ChangesResponse is a page of classified paths of one scan.
type ChangesResponse struct {
	ScanID  int64                 `json:"scanId"`
	Type    string                `json:"type,omitempty"`
	Count   int                   `json:"count"`
	Changes []database.FileChange `json:"changes"`
}

// ListScans returns the most recent scan runs. Open runs have a null finishedAt.
func (h *Handlers) ListScans(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultScanLimit)
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	runs, err := h.store.ListScanRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list scan runs", zap.Error(err))
		h.writeJSONError(w, "failed to list scans", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, runs)
}

// GetScan returns one scan run and its change totals.
func (h *Handlers) GetScan(w http.ResponseWriter, r *http.Request) {
	scanID, ok := h.scanID(w, r)
	if !ok {
		return
	}

	run, err := h.store.GetScanRun(r.Context(), scanID)
	if err != nil {
		h.storeError(w, scanID, err)
		return
	}

	totals, err := h.store.ChangeTotals(r.Context(), scanID)
	if err != nil {
		h.storeError(w, scanID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, ScanDetail{Scan: run, Totals: totals})
}

// ListChanges returns classified paths of a scan, optionally filtered by
// ?type=added|modified|deleted.
func (h *Handlers) ListChanges(w http.ResponseWriter, r *http.Request) {
	scanID, ok := h.scanID(w, r)
	if !ok {
		return
	}

	changeType := database.ChangeType(r.URL.Query().Get("type"))
	if changeType != "" && !changeType.Valid() {
		h.writeJSONError(w, "type must be one of added, modified, deleted", http.StatusBadRequest)
		return
	}

	limit, err := parseLimit(r, defaultChangeLimit)
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetScanRun(r.Context(), scanID); err != nil {
		h.storeError(w, scanID, err)
		return
	}

	changes, err := h.store.ListChanges(r.Context(), scanID, changeType, limit)
	if err != nil {
		h.storeError(w, scanID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, ChangesResponse{
		ScanID:  scanID,
		Type:    string(changeType),
		Count:   len(changes),
		Changes: changes,
	})
}

func (h *Handlers) scanID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.writeJSONError(w, "invalid scan id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handlers) storeError(w http.ResponseWriter, scanID int64, err error) {
	if errors.Is(err, database.ErrScanNotFound) {
		h.writeJSONError(w, "scan not found", http.StatusNotFound)
		return
	}
	h.logger.Error("Scan query failed", zap.Int64("scan_id", scanID), zap.Error(err))
	h.writeJSONError(w, "internal error", http.StatusInternalServerError)
}

type limitError string

func (e limitError) Error() string { return string(e) }

// parseLimit reads ?limit=N, clamped to maxLimit.
func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, limitError("limit must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}
