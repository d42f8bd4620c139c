package realtime

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/notifyd/internal/dispatcher"
	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Message is the JSON payload written to websocket subscribers. Data carries
// the full persisted notification.
type Message struct {
	Event string               `json:"event"`
	Data  *models.Notification `json:"data,omitempty"`
}

// EventCreated names the only event the stream currently carries.
const EventCreated = "notification.created"

// Hub bridges dispatcher subscriptions onto websocket connections. It owns the
// connection lifecycle; the dispatcher only sees subscribe/unsubscribe.
type Hub struct {
	dispatcher *dispatcher.Dispatcher
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewHub constructs a websocket hub on top of the dispatcher.
func NewHub(d *dispatcher.Dispatcher) *Hub {
	return &Hub{
		dispatcher: d,
		log:        logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
}

// Serve upgrades the HTTP connection to a WebSocket and streams the user's
// notifications until the client goes away. It blocks for the lifetime of the
// connection.
func (h *Hub) Serve(userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.dispatcher.Subscribe(userID)
	defer h.dispatcher.Unsubscribe(sub)

	go h.writeLoop(conn, sub)
	h.readLoop(conn, userID)
}

// readLoop drains client frames so pong handlers run; the stream is one-way
// and inbound payloads are discarded.
func (h *Hub) readLoop(conn *websocket.Conn, userID string) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Debug("unexpected close", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, sub *dispatcher.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case notification, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(Message{Event: EventCreated, Data: &notification}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
