package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tinyduel/internal/duel"
	"tinyduel/internal/logging"
)

// latestSink returns a one-slot channel and a callback that replaces whatever
// the channel still holds with the newest match.
func latestSink() (<-chan duel.Match, func(duel.Match)) {
	ch := make(chan duel.Match, 1)
	return ch, func(m duel.Match) {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- m:
		default:
		}
	}
}

func (h *Handler) heartbeat() time.Duration {
	if h.Heartbeat > 0 {
		return h.Heartbeat
	}
	return DefaultHeartbeat
}

// HandleSSE streams match snapshots as Server-Sent Events
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sse/")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	updates, sink := latestSink()
	unsubscribe, err := h.Service.SubscribeToMatch(r.Context(), id, sink)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logging.Debugf("sse viewer attached to %s from %s", id, ClientIP(r))

	ticker := time.NewTicker(h.heartbeat())
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte("event: heartbeat\ndata: {}\n\n"))
			flusher.Flush()
		case m := <-updates:
			data, err := json.Marshal(m)
			if err != nil {
				logging.Errorf("encode match %s: %v", id, err)
				return
			}
			_, _ = fmt.Fprintf(w, "event: match\nid: %d\ndata: %s\n\n", m.Version, data)
			flusher.Flush()
		}
	}
}
