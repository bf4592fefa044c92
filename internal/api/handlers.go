package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/korjavin/caloriediary/internal/catalog"
	"github.com/korjavin/caloriediary/internal/diary"
	"github.com/korjavin/caloriediary/internal/metrics"
	"github.com/korjavin/caloriediary/internal/middleware"
	"github.com/korjavin/caloriediary/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 16

// Finder searches saved entries by name.
type Finder interface {
	Find(q string, limit int) ([]store.Entry, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Diary    *diary.Controller
	Finder   Finder
	Manifest *store.Manifest
	Registry *metrics.Registry
	// CheckOrigin vets websocket upgrades on /api/v1/stream.
	CheckOrigin func(r *http.Request) bool
}

// stateResponse is the JSON shape of a diary snapshot.
type stateResponse struct {
	Query     string            `json:"query"`
	Results   []catalog.Product `json:"results"`
	Mode      string            `json:"mode"`
	Selected  *catalog.Product  `json:"selected"`
	Weight    string            `json:"weight"`
	Entries   []store.Entry     `json:"entries"`
	Totals    store.Totals      `json:"totals"`
	Notice    bool              `json:"notice"`
	LastSaved *store.Entry      `json:"last_saved,omitempty"`
}

const (
	modeBrowsing      = "browsing"
	modeProductChosen = "product_chosen"
)

func toStateResponse(s diary.Snapshot) stateResponse {
	resp := stateResponse{
		Query:     s.Query,
		Results:   s.Results,
		Mode:      modeBrowsing,
		Weight:    s.Weight,
		Entries:   s.Entries,
		Totals:    s.Totals,
		Notice:    s.Notice,
		LastSaved: s.LastSaved,
	}
	if p, ok := s.Selected(); ok {
		resp.Mode = modeProductChosen
		resp.Selected = &p
	}
	return resp
}

// entriesResponse is the saved log with its aggregate.
type entriesResponse struct {
	Entries []store.Entry `json:"entries"`
	Totals  store.Totals  `json:"totals"`
}

type textRequest struct {
	Text string `json:"text"`
}

type selectRequest struct {
	Name string `json:"name"`
}

// Health returns a liveness check with manifest metadata.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.Manifest != nil {
		resp["schema_version"] = h.Manifest.SchemaVersion
		resp["created_at"] = h.Manifest.CreatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// Metrics returns latency snapshots for every registered histogram.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		writeJSON(w, http.StatusOK, map[string]metrics.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, h.Registry.Snapshot())
}

// State returns the current diary snapshot.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(h.Diary.Snapshot()))
}

// UpdateQuery sets the search text; results arrive after the debounce window.
func (h *Handler) UpdateQuery(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.Diary.UpdateQuery(req.Text)
	writeJSON(w, http.StatusAccepted, toStateResponse(h.Diary.Snapshot()))
}

// SelectProduct chooses a product from the current result list by name.
func (h *Handler) SelectProduct(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for _, p := range h.Diary.Snapshot().Results {
		if p.Name == req.Name {
			h.Diary.SelectProduct(p)
			writeJSON(w, http.StatusOK, toStateResponse(h.Diary.Snapshot()))
			return
		}
	}
	http.Error(w, "product not in current results", http.StatusNotFound)
}

// ClearSelection returns to browsing.
func (h *Handler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	h.Diary.ClearSelection()
	writeJSON(w, http.StatusOK, toStateResponse(h.Diary.Snapshot()))
}

// UpdateWeight stores the weight text.
func (h *Handler) UpdateWeight(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.Diary.UpdateWeight(req.Text)
	writeJSON(w, http.StatusOK, toStateResponse(h.Diary.Snapshot()))
}

// Save records the selected product with the current weight.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	e, err := h.Diary.SaveCurrent(r.Context())
	if errors.Is(err, diary.ErrNoProduct) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("save failed", "request_id", middleware.RequestID(r.Context()), "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// DismissNotice hides the save confirmation.
func (h *Handler) DismissNotice(w http.ResponseWriter, r *http.Request) {
	h.Diary.DismissNotice()
	w.WriteHeader(http.StatusNoContent)
}

// Entries lists saved entries with totals.
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	snap := h.Diary.Snapshot()
	writeJSON(w, http.StatusOK, entriesResponse{Entries: snap.Entries, Totals: snap.Totals})
}

// DeleteEntry removes one saved entry.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.Diary.Delete(r.Context(), id); err != nil {
		slog.Error("delete failed", "id", id, "request_id", middleware.RequestID(r.Context()), "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FindEntries searches saved entry names.
func (h *Handler) FindEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "missing query parameter 'q'", http.StatusBadRequest)
		return
	}

	limit := 20
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 {
			limit = min(n, 100)
		}
	}

	entries, err := h.Finder.Find(q, limit)
	if err != nil {
		slog.Error("find failed", "query", q, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": entries})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
