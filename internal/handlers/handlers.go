package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"tinyduel/internal/duel"
	"tinyduel/internal/game"
	"tinyduel/internal/storage"
	"tinyduel/internal/templates"
)

// DefaultHeartbeat is the keep-alive interval for streaming connections.
const DefaultHeartbeat = 15 * time.Second

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Service        *game.Service
	Heartbeat      time.Duration
	AllowedOrigins []string
	Commit         string
	BuildDate      string
}

// NewHandler creates a new handler instance
func NewHandler(svc *game.Service) *Handler {
	return &Handler{Service: svc, Heartbeat: DefaultHeartbeat, Commit: "dev"}
}

// SeatRequest is the body of create and join: the acting user, their
// character and the character's deck.
type SeatRequest struct {
	duel.Seat
	Deck []duel.Card `json:"deck"`
}

// ActionRequest is the body of draw, play and end-turn.
type ActionRequest struct {
	UserID string `json:"userId"`
	CardID string `json:"cardId,omitempty"`
}

// HandleCreate starts a new match with the caller seated first.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var body SeatRequest
	if !decode(w, r, &body) {
		return
	}
	m, err := h.Service.CreateMatch(r.Context(), body.Seat, duel.Deck{CharacterID: body.CharacterID, Cards: body.Deck})
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "matchId": m.ID, "match": m})
}

// HandleJoin seats the caller as the second player.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/join/")
	var body SeatRequest
	if !decode(w, r, &body) {
		return
	}
	m, err := h.Service.JoinMatch(r.Context(), id, body.Seat, duel.Deck{CharacterID: body.CharacterID, Cards: body.Deck})
	h.respond(w, m, err)
}

// HandleDraw draws a card for the caller.
func (h *Handler) HandleDraw(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, "/draw/", func(ctx context.Context, id string, a ActionRequest) (duel.Match, error) {
		return h.Service.DrawCard(ctx, id, a.UserID)
	})
}

// HandlePlay plays a card from the caller's hand.
func (h *Handler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, "/play/", func(ctx context.Context, id string, a ActionRequest) (duel.Match, error) {
		if strings.TrimSpace(a.CardID) == "" {
			return duel.Match{}, errMissingCard
		}
		return h.Service.PlayCard(ctx, id, a.UserID, a.CardID)
	})
}

// HandleEndTurn passes the turn.
func (h *Handler) HandleEndTurn(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, "/end-turn/", func(ctx context.Context, id string, a ActionRequest) (duel.Match, error) {
		return h.Service.EndTurn(ctx, id, a.UserID)
	})
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request, prefix string, run func(context.Context, string, ActionRequest) (duel.Match, error)) {
	if !requirePost(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, prefix)
	var body ActionRequest
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		WriteJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing user id"})
		return
	}
	m, err := run(r.Context(), id, body)
	h.respond(w, m, err)
}

// HandleMatch returns the current snapshot of a match, or its commit history
// under /match/{id}/revisions.
func (h *Handler) HandleMatch(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/match/")
	if matchID, ok := strings.CutSuffix(id, "/revisions"); ok {
		revs, err := h.Service.Revisions(r.Context(), matchID)
		if err != nil {
			writeError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "revisions": revs})
		return
	}
	m, err := h.Service.GetMatch(r.Context(), id)
	h.respond(w, m, err)
}

// HandleStats reports match counts.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "stats": stats})
}

// HandleHealth reports liveness, the build and whether the store answers.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	payload := map[string]any{"ok": true, "status": "ok", "commit": h.Commit, "buildDate": h.BuildDate}
	if _, err := h.Service.Stats(ctx); err != nil {
		status = http.StatusServiceUnavailable
		payload["ok"] = false
		payload["status"] = "degraded"
		payload["error"] = err.Error()
	}
	WriteJSON(w, status, payload)
}

// HandlePage serves the home page or a match viewer
func (h *Handler) HandlePage(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" || path == "index.html" {
		stats, _ := h.Service.Stats(r.Context())
		templates.WriteHomeHTML(w, stats)
		return
	}
	if _, err := h.Service.GetMatch(r.Context(), path); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "could not load match", http.StatusInternalServerError)
		return
	}
	templates.WriteMatchHTML(w, path)
}

func (h *Handler) respond(w http.ResponseWriter, m duel.Match, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "match": m})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", http.MethodPost)
	WriteJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
	return false
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad json"})
		return false
	}
	return true
}

// ClientIP extracts the client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
