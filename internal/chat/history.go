package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// historyEntry mirrors the persisted row shape the REST endpoint exposes.
type historyEntry struct {
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type historyResponse struct {
	Status  bool           `json:"status"`
	Message string         `json:"message"`
	Data    []historyEntry `json:"data"`
}

// HistoryHandler serves GET /api/chat/history?page=<int>&pageSize=<int>,
// returning messages ascending by timestamp with offset pagination.
type HistoryHandler struct {
	log     *slog.Logger
	store   MessageStore
	metrics *Metrics
}

// NewHistoryHandler constructs the history pagination endpoint.
func NewHistoryHandler(log *slog.Logger, store MessageStore, metrics *Metrics) *HistoryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HistoryHandler{log: log, store: store, metrics: metrics}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.metrics != nil {
		h.metrics.HistoryRequests.Inc()
	}

	page := queryInt(r, "page", 0)
	pageSize := queryInt(r, "pageSize", defaultHistoryPageSize)
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	if pageSize > maxHistoryPageSize {
		pageSize = maxHistoryPageSize
	}

	msgs, err := h.store.ReadPage(r.Context(), page, pageSize)
	if err != nil {
		h.log.Error("chat.history.read.fail", "page", page, "page_size", pageSize, "err", err)
		writeHistoryJSON(w, http.StatusInternalServerError, historyResponse{
			Status:  false,
			Message: "failed to fetch history",
		})
		return
	}

	data := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		data = append(data, historyEntry{
			Username:  m.Username,
			Content:   m.Content,
			Timestamp: m.SentAt,
		})
	}

	writeHistoryJSON(w, http.StatusOK, historyResponse{
		Status:  true,
		Message: "history fetched",
		Data:    data,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeHistoryJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
