package adminview

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"SOSBeacon/internal/models"
	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frame mirrors the relay wire message.
type frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Group     string          `json:"group"`
}

// Subscriber holds a relay connection open and reconnects with backoff.
// OnConnect runs after every successful dial so the caller can refresh with
// list(); events missed while disconnected are not replayed. OnUnavailable
// runs once per outage, on the first failed dial, so the caller can fall
// back to a manual refresh.
type Subscriber struct {
	URL           func() string
	Dialer        *websocket.Dialer
	OnEvent       func(Event)
	OnConnect     func()
	OnDisconnect  func(error)
	OnUnavailable func(error)
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	ReadTimeout   time.Duration
}

// Run connects until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	dialer := s.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	minBackoff, maxBackoff := s.MinBackoff, s.MaxBackoff
	if minBackoff <= 0 {
		minBackoff = 500 * time.Millisecond
	}
	if maxBackoff < minBackoff {
		maxBackoff = 30 * time.Second
	}

	backoff := minBackoff
	reported := false
	for {
		conn, _, err := dialer.DialContext(ctx, s.URL(), nil)
		if err != nil && !reported && ctx.Err() == nil {
			reported = true
			if s.OnUnavailable != nil {
				s.OnUnavailable(err)
			}
		}
		if err == nil {
			backoff = minBackoff
			reported = false
			if s.OnConnect != nil {
				s.OnConnect()
			}
			err = s.read(ctx, conn)
			if s.OnDisconnect != nil && ctx.Err() == nil {
				s.OnDisconnect(err)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("relay unavailable, retrying", zap.Error(err), zap.Duration("backoff", backoff))

		wait := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (s *Subscriber) read(ctx context.Context, conn *websocket.Conn) error {
	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		ev, ok := decodeFrame(payload)
		if ok && s.OnEvent != nil {
			s.OnEvent(ev)
		}
	}
}

func decodeFrame(payload []byte) (Event, bool) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		logger.Debug("ignoring undecodable relay frame", zap.Error(err))
		return Event{}, false
	}
	switch f.Type {
	case constants.EventNewAlert, constants.EventAlertUpdated:
	default:
		return Event{}, false
	}
	var alert models.Alert
	if err := json.Unmarshal(f.Data, &alert); err != nil || alert.ID == "" {
		return Event{}, false
	}
	return Event{Type: f.Type, Alert: alert}, true
}
