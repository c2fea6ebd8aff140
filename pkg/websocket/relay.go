package websocket

import "sync"

// Relay publishes a named event to every subscriber of group.
// Delivery is best-effort and at-most-once; nothing is replayed.
type Relay interface {
	Publish(group, event string, payload any)
}

// NopRelay discards everything.
type NopRelay struct{}

func (NopRelay) Publish(string, string, any) {}

// Fanout publishes to several relays in order.
type Fanout []Relay

func (f Fanout) Publish(group, event string, payload any) {
	for _, r := range f {
		if r != nil {
			r.Publish(group, event, payload)
		}
	}
}

// Recorder keeps published events in memory; handy for tests and the admin CLI dry run.
type Recorder struct {
	mu     sync.Mutex
	Events []Frame
}

func (r *Recorder) Publish(group, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Frame{Type: event, Data: payload, Group: group})
}

// Snapshot returns a copy of the recorded events.
func (r *Recorder) Snapshot() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.Events...)
}
