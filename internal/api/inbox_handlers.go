package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/example/marketplace-ledger/internal/apperr"
	"github.com/example/marketplace-ledger/internal/inbox"
)

// heartbeatInterval keeps idle event streams open through proxies
var heartbeatInterval = 15 * time.Second

func parseSeq(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid sequence %q", apperr.ErrInvalidInput, v)
	}
	return n, nil
}

func (h *Handlers) GetInbox(w http.ResponseWriter, r *http.Request) {
	after, err := parseSeq(r.URL.Query().Get("after"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			respondError(w, r, fmt.Errorf("%w: invalid limit %q", apperr.ErrInvalidInput, v))
			return
		}
	}

	events, err := h.hub.Inbox().List(r.Context(), actor(r).ID, after, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if events == nil {
		events = []inbox.NotificationEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.Inbox().MarkRead(r.Context(), actor(r).ID, r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.hub.Inbox().UnreadCount(r.Context(), actor(r).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unread": n})
}

// StreamEvents serves the caller's notifications as server-sent events. A
// reconnecting client resumes after the Last-Event-ID it saw; the ?after=
// query parameter does the same for clients that cannot set headers.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}

	resume := r.Header.Get("Last-Event-ID")
	if resume == "" {
		resume = r.URL.Query().Get("after")
	}
	after, err := parseSeq(resume)
	if err != nil {
		respondError(w, r, err)
		return
	}

	sub, err := h.hub.Subscribe(r.Context(), actor(r).ID, after)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case e, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Type, data); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
