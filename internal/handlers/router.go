package handlers

import "net/http"

// NewRouter registers every route on a fresh mux and wraps it with request
// logging and, when origins are configured, CORS.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/matches", h.HandleCreate)
	mux.HandleFunc("/join/", h.HandleJoin)
	mux.HandleFunc("/draw/", h.HandleDraw)
	mux.HandleFunc("/play/", h.HandlePlay)
	mux.HandleFunc("/end-turn/", h.HandleEndTurn)
	mux.HandleFunc("/match/", h.HandleMatch)
	mux.HandleFunc("/sse/", h.HandleSSE)
	mux.HandleFunc("/ws/", h.HandleWS)
	mux.HandleFunc("/stats", h.HandleStats)
	mux.HandleFunc("/healthz", h.HandleHealth)
	mux.HandleFunc("/", h.HandlePage)

	handler := Logging(mux)
	if len(h.AllowedOrigins) > 0 {
		handler = CORS(h.AllowedOrigins)(handler)
	}
	return handler
}
