package document

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"webdoc/internal/auth"
	"webdoc/internal/chat"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	countWindowDays = 7
)

// apiResponse is the envelope every REST endpoint answers with.
type apiResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// dayCountEntry is one slot of the 7-day upload summary.
type dayCountEntry struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// Handler serves the document REST endpoints.
type Handler struct {
	log    *slog.Logger
	docs   Store
	tokens chat.TokenVerifier

	// now is swappable in tests so the 7-day window is deterministic.
	now func() time.Time
}

// NewHandler constructs a document Handler.
func NewHandler(log *slog.Logger, docs Store, tokens chat.TokenVerifier) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, docs: docs, tokens: tokens, now: time.Now}
}

// Register wires document routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/documents", h.handleList)
	mux.HandleFunc("/api/documents/count7d", h.handleCount7d)
}

// handleList serves GET /api/documents?page=&pageSize=, newest first.
// page is 1-based.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "pageSize", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	docs, err := h.docs.List(r.Context(), page, pageSize)
	if err != nil {
		h.log.Error("document.list.fail", "page", page, "page_size", pageSize, "err", err)
		writeFailure(w, http.StatusInternalServerError, "failed to load documents")
		return
	}
	if docs == nil {
		docs = []Document{}
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Status:  true,
		Message: "documents fetched",
		Data:    docs,
	})
}

// handleCount7d serves GET /api/documents/count7d. Admin only.
// The response always carries exactly seven entries, oldest day first,
// with zero counts for days without uploads.
func (h *Handler) handleCount7d(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := h.tokens.Verify(auth.BearerToken(r))
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if id.Role != "admin" {
		writeFailure(w, http.StatusForbidden, "admin access required")
		return
	}

	today := h.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(countWindowDays - 1))

	counts, err := h.docs.CountSince(r.Context(), since)
	if err != nil {
		h.log.Error("document.count7d.fail", "err", err)
		writeFailure(w, http.StatusInternalServerError, "failed to load document counts")
		return
	}

	byDay := make(map[string]int, len(counts))
	for _, dc := range counts {
		byDay[dayKey(dc.Day)] = dc.Count
	}

	entries := make([]dayCountEntry, 0, countWindowDays)
	for i := countWindowDays - 1; i >= 0; i-- {
		day := dayKey(today.AddDate(0, 0, -i))
		entries = append(entries, dayCountEntry{Time: day, Count: byDay[day]})
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Status:  true,
		Message: "document counts fetched",
		Data:    entries,
	})
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiResponse{Status: false, Message: msg})
}
