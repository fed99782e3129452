package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tinyduel/internal/duel"
	"tinyduel/internal/logging"
	"tinyduel/pkg/utils"
)

const writeWait = 10 * time.Second

// wsAction is a player action sent over the websocket.
type wsAction struct {
	Action string `json:"action"`
	CardID string `json:"cardId,omitempty"`
}

// wsMessage is everything the server writes to a websocket client.
type wsMessage struct {
	Kind  string      `json:"kind"`
	Match *duel.Match `json:"match,omitempty"`
	Error string      `json:"error,omitempty"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	allowed := normalizeOrigins(h.AllowedOrigins)
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			return originAllowed(allowed, origin) || sameHost(origin, r.Host)
		},
	}
}

func sameHost(origin, host string) bool {
	origin = strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return strings.EqualFold(origin, host)
}

// HandleWS streams match snapshots over a websocket and accepts draw, play
// and end_turn actions from the player named by the userId query parameter.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ws/")
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))

	updates, sink := latestSink()
	unsubscribe, err := h.Service.SubscribeToMatch(r.Context(), id, sink)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("websocket upgrade for %s: %v", id, err)
		return
	}

	c := &wsClient{
		handler: h,
		conn:    conn,
		matchID: id,
		userID:  userID,
		replies: make(chan wsMessage, 8),
		done:    make(chan struct{}),
		log:     logging.With("match", id, "user", userID, "conn", utils.RandomHex(4)),
	}
	c.log.Debugw("websocket attached")
	go c.writePump(updates)
	c.readPump(r.Context())
}

type wsClient struct {
	handler *Handler
	conn    *websocket.Conn
	matchID string
	userID  string
	replies chan wsMessage
	done    chan struct{}
	log     *zap.SugaredLogger
}

func (c *wsClient) readPump(ctx context.Context) {
	defer func() {
		close(c.done)
		_ = c.conn.Close()
	}()

	pongWait := 2 * c.handler.heartbeat()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.conn.SetReadLimit(1 << 16)

	for {
		var msg wsAction
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Infow("websocket read failed", "error", err)
			}
			return
		}
		c.dispatch(ctx, msg)
	}
}

func (c *wsClient) dispatch(ctx context.Context, msg wsAction) {
	if c.userID == "" {
		c.reply(wsMessage{Kind: "error", Error: "missing user id"})
		return
	}
	svc := c.handler.Service
	var err error
	switch msg.Action {
	case "draw":
		_, err = svc.DrawCard(ctx, c.matchID, c.userID)
	case "play":
		if strings.TrimSpace(msg.CardID) == "" {
			err = errMissingCard
			break
		}
		_, err = svc.PlayCard(ctx, c.matchID, c.userID, msg.CardID)
	case "end_turn":
		_, err = svc.EndTurn(ctx, c.matchID, c.userID)
	default:
		c.reply(wsMessage{Kind: "error", Error: "unknown action"})
		return
	}
	if err != nil {
		_, text := Rejection(err)
		c.reply(wsMessage{Kind: "error", Error: text})
	}
}

func (c *wsClient) reply(m wsMessage) {
	select {
	case c.replies <- m:
	default:
		c.log.Debugw("dropping reply to slow client", "kind", m.Kind)
	}
}

func (c *wsClient) writePump(updates <-chan duel.Match) {
	ticker := time.NewTicker(c.handler.heartbeat())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		var out wsMessage
		select {
		case <-c.done:
			return
		case m := <-updates:
			out = wsMessage{Kind: "match", Match: &m}
		case out = <-c.replies:
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(out); err != nil {
			c.log.Debugw("websocket write failed", "error", err)
			return
		}
	}
}
