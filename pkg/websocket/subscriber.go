package websocket

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait = 10 * time.Second

	// application-level keepalive understood on the socket
	typePing = "ping"
	typePong = "pong"
)

// subscriber is one upgraded connection. Its rooms are fixed at upgrade time.
type subscriber struct {
	id     string
	userID string
	rooms  []string
	conn   *websocket.Conn
	outbox chan []byte
	hub    *Hub

	alive    atomic.Bool
	lastSeen atomic.Int64
}

func newSubscriber(userID string, buf int, rooms ...string) *subscriber {
	s := &subscriber{
		id:     "ws_" + uuid.NewString(),
		userID: userID,
		rooms:  rooms,
		outbox: make(chan []byte, buf),
	}
	s.alive.Store(true)
	s.seen()
	return s
}

func (s *subscriber) seen() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *subscriber) close() {
	s.alive.Store(false)
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(set) == 0 || origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && set[u.Scheme+"://"+u.Host]
	}
}

// Serve upgrades the request and joins the connection to rooms before
// returning, so nothing published after the join is missed.
func Serve(hub *Hub, w http.ResponseWriter, r *http.Request, userID string, rooms ...string) {
	up := websocket.Upgrader{
		ReadBufferSize:    hub.cfg.ReadBufferSize,
		WriteBufferSize:   hub.cfg.WriteBufferSize,
		CheckOrigin:       originChecker(hub.cfg.AllowedOrigins),
		EnableCompression: hub.cfg.EnableCompression,
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("relay upgrade failed: %v", err)
		return
	}

	s := newSubscriber(userID, hub.cfg.BufferSize, rooms...)
	s.conn = conn
	s.hub = hub
	select {
	case hub.join <- s:
	case <-hub.ctx.Done():
		_ = conn.Close()
		return
	}
	go s.writeLoop()
	go s.readLoop()
}

func (s *subscriber) readLoop() {
	defer func() {
		select {
		case s.hub.leave <- s:
		case <-s.hub.ctx.Done():
		}
		s.close()
	}()

	timeout := s.hub.cfg.ConnectionTimeout
	s.conn.SetReadLimit(int64(s.hub.cfg.MaxMessageSize))
	_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	s.conn.SetPongHandler(func(string) error {
		s.seen()
		return s.conn.SetReadDeadline(time.Now().Add(timeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Debugf("relay read %s: %v", s.id, err)
			}
			return
		}
		s.seen()
		// the relay is push-only; inbound frames are keepalives at most
		var in Frame
		if json.Unmarshal(data, &in) == nil && in.Type == typePing {
			pong, _ := json.Marshal(Frame{Type: typePong, Timestamp: time.Now().Unix()})
			select {
			case s.outbox <- pong:
			default:
			}
		}
	}
}

func (s *subscriber) writeLoop() {
	ping := time.NewTicker(s.hub.cfg.HeartbeatInterval * 9 / 10)
	defer func() {
		ping.Stop()
		s.close()
	}()

	for {
		select {
		case data, ok := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
