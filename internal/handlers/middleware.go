package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"tinyduel/internal/duel"
	"tinyduel/internal/game"
	"tinyduel/internal/logging"
	"tinyduel/internal/storage"
)

var errMissingCard = errors.New("missing card id")

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Rejection maps an action error to an HTTP status and the message shown to
// players.
func Rejection(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Match not found"
	case errors.Is(err, duel.ErrMatchFull):
		return http.StatusConflict, "Match full"
	case errors.Is(err, duel.ErrAlreadyJoined):
		return http.StatusConflict, "Already joined"
	case errors.Is(err, duel.ErrNotYourTurn):
		return http.StatusConflict, "Not your turn"
	case errors.Is(err, duel.ErrEmptyDeck),
		errors.Is(err, duel.ErrInvalidDeck),
		errors.Is(err, duel.ErrInvalidHP),
		errors.Is(err, duel.ErrInvalidSeat),
		errors.Is(err, errMissingCard):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, game.ErrNoHistory):
		return http.StatusNotImplemented, "Match history not available"
	case errors.Is(err, storage.ErrConflict):
		return http.StatusServiceUnavailable, "Match busy, try again"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := Rejection(err)
	if status == http.StatusInternalServerError {
		logging.Errorf("request failed: %v", err)
	}
	WriteJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// Logging logs one line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.L().Infow("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"ip", ClientIP(r),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// statusRecorder captures the response status while still exposing the
// streaming interfaces SSE and websocket upgrades need.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// CORS allows browser calls from the listed origins. "*" allows any origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := normalizeOrigins(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !originAllowed(allowed, origin) {
				if r.Method == http.MethodOptions && origin != "" {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeOrigins(origins []string) map[string]struct{} {
	out := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			out[origin] = struct{}{}
		}
	}
	return out
}

func originAllowed(allowed map[string]struct{}, origin string) bool {
	if _, ok := allowed["*"]; ok {
		return true
	}
	_, ok := allowed[origin]
	return ok
}
