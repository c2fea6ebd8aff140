package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Frame is the JSON text frame pushed to subscribers, one per event.
type Frame struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Group     string `json:"group,omitempty"`
}

// Hub fans events out to the subscribers of a room. Registration, removal
// and delivery all run on one goroutine, which is also the only place a
// subscriber's outbox is closed.
type Hub struct {
	cfg *Config

	mu    sync.RWMutex
	subs  map[string]*subscriber
	rooms map[string]map[*subscriber]struct{}

	publish chan Frame
	join    chan *subscriber
	leave   chan *subscriber

	count   atomic.Int64
	dropped atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub starts the hub loop. A nil cfg uses DefaultConfig.
func NewHub(cfg *Config) *Hub {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:     cfg,
		subs:    make(map[string]*subscriber),
		rooms:   make(map[string]map[*subscriber]struct{}),
		publish: make(chan Frame, cfg.QueueSize),
		join:    make(chan *subscriber, 64),
		leave:   make(chan *subscriber, 64),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

// Publish queues event for room and returns immediately. When the queue is
// full the event is dropped and counted; nothing is ever replayed.
func (h *Hub) Publish(room, event string, payload any) {
	f := Frame{Type: event, Data: payload, Group: room, Timestamp: time.Now().Unix()}
	select {
	case <-h.ctx.Done():
	case h.publish <- f:
	default:
		h.dropped.Add(1)
		logrus.Warnf("relay queue full, dropped %s for room %s", event, room)
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	sweep := time.NewTicker(h.cfg.HeartbeatInterval)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case s := <-h.join:
			h.add(s)
		case s := <-h.leave:
			h.remove(s)
		case f := <-h.publish:
			h.deliver(f)
		case <-sweep.C:
			h.expireIdle()
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count.Load() >= h.cfg.MaxConnections {
		logrus.Warnf("relay at capacity (%d), refusing %s", h.cfg.MaxConnections, s.id)
		s.close()
		return
	}
	h.subs[s.id] = s
	for _, room := range s.rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*subscriber]struct{})
		}
		h.rooms[room][s] = struct{}{}
	}
	h.count.Add(1)
	logrus.Infof("relay subscriber %s joined (user %s, rooms %v, total %d)", s.id, s.userID, s.rooms, h.count.Load())
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	for _, room := range s.rooms {
		delete(h.rooms[room], s)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	h.count.Add(-1)
	s.alive.Store(false)
	close(s.outbox)
	logrus.Infof("relay subscriber %s left (total %d)", s.id, h.count.Load())
}

// deliver encodes f once and offers it to every live member of its room.
// A member whose outbox is full misses the event.
func (h *Hub) deliver(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		logrus.Errorf("relay encode %s: %v", f.Type, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[f.Group] {
		if !s.alive.Load() {
			continue
		}
		select {
		case s.outbox <- data:
		default:
			h.dropped.Add(1)
			logrus.Debugf("relay subscriber %s is slow, dropped %s", s.id, f.Type)
			if h.cfg.CloseOnBackpressure {
				s.close()
			}
		}
	}
}

func (h *Hub) expireIdle() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cutoff := time.Now().Add(-h.cfg.ConnectionTimeout).UnixNano()
	for _, s := range h.subs {
		if s.conn != nil && s.lastSeen.Load() < cutoff {
			logrus.Warnf("relay subscriber %s timed out", s.id)
			s.close()
		}
	}
}

// Count is the number of registered subscribers.
func (h *Hub) Count() int64 { return h.count.Load() }

// Dropped counts events lost to a full queue or a slow subscriber.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// RoomSize is the number of subscribers in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close stops the loop and drops every connection.
func (h *Hub) Close() {
	h.cancel()
	<-h.done
	h.mu.Lock()
	for _, s := range h.subs {
		s.close()
	}
	h.mu.Unlock()
	logrus.Info("relay hub closed")
}
