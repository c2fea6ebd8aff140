package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Hub relays events over server-sent events to clients that cannot hold a
// websocket. It shares the websocket relay's contract: best effort, no replay.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]*stream
	rooms   map[string]map[*stream]struct{}

	keepalive time.Duration
	retry     time.Duration
	buf       int

	seq     atomic.Uint64
	dropped atomic.Int64
}

type stream struct {
	id    string
	rooms []string
	out   chan string
	done  chan struct{}
}

func NewHub(keepalive time.Duration) *Hub {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Hub{
		streams:   make(map[string]*stream),
		rooms:     make(map[string]map[*stream]struct{}),
		keepalive: keepalive,
		retry:     5 * time.Second,
		buf:       64,
	}
}

// open registers id in rooms, replacing any stream already using id.
func (h *Hub) open(id string, rooms ...string) *stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.streams[id]; ok {
		h.closeLocked(old)
	}
	s := &stream{id: id, rooms: rooms, out: make(chan string, h.buf), done: make(chan struct{})}
	h.streams[id] = s
	for _, room := range rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*stream]struct{})
		}
		h.rooms[room][s] = struct{}{}
	}
	return s
}

func (h *Hub) close(s *stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[s.id] == s {
		h.closeLocked(s)
	}
}

func (h *Hub) closeLocked(s *stream) {
	close(s.done)
	for _, room := range s.rooms {
		delete(h.rooms[room], s)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.streams, s.id)
}

// RoomSize reports how many streams are open on room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Dropped counts events a full stream buffer could not take.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Publish sends a named event to every stream in room without blocking.
func (h *Hub) Publish(room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.Errorf("sse encode %s: %v", event, err)
		return
	}
	msg := encode(strconv.FormatUint(h.seq.Add(1), 10), event, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[room] {
		select {
		case s.out <- msg:
		default:
			h.dropped.Add(1)
			logrus.Debugf("sse stream %s is slow, dropped %s", s.id, event)
		}
	}
}

// encode renders one event block; multi-line data becomes several data fields.
func encode(id, event string, data []byte) string {
	var b strings.Builder
	if id != "" {
		b.WriteString("id: " + id + "\n")
	}
	if event != "" {
		b.WriteString("event: " + event + "\n")
	}
	for _, line := range strings.Split(string(data), "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteByte('\n')
	return b.String()
}

// Serve streams room events to the caller until the request ends or the
// same streamID connects again.
func (h *Hub) Serve(c *gin.Context, streamID string, rooms ...string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retry.Milliseconds())
	flusher.Flush()

	s := h.open(streamID, rooms...)
	defer h.close(s)

	tick := time.NewTicker(h.keepalive)
	defer tick.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-tick.C:
			// comment lines keep proxies from idling the stream out
			_, _ = c.Writer.WriteString(": keepalive\n\n")
		case msg := <-s.out:
			_, _ = c.Writer.WriteString(msg)
		}
		flusher.Flush()
	}
}
