// Package adminview keeps the admin's local picture of the alert list,
// fed by list refreshes and relay events.
package adminview

import (
	"sort"
	"sync"

	"SOSBeacon/internal/models"
	constants "SOSBeacon/pkg/constant"
)

// Event is one relay push.
type Event struct {
	Type  string
	Alert models.Alert
}

// State is the ordered alert list, newest first, keyed by id.
// Events and refreshes may arrive in any order; applying the same
// information twice leaves the state unchanged.
type State struct {
	mu     sync.RWMutex
	alerts []models.Alert
	index  map[string]int
}

func NewState() *State {
	return &State{index: map[string]int{}}
}

// Load replaces the state with a fresh list().
func (s *State) Load(alerts []models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append([]models.Alert(nil), alerts...)
	s.reorder()
}

// Apply upserts the alert carried by ev and reports whether anything changed.
// Stale copies never overwrite newer ones and a resolved alert never
// returns to pending.
func (s *State) Apply(ev Event) bool {
	if ev.Alert.ID == "" {
		return false
	}
	switch ev.Type {
	case constants.EventNewAlert, constants.EventAlertUpdated:
	default:
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[ev.Alert.ID]
	if !ok {
		s.alerts = append(s.alerts, ev.Alert)
		s.reorder()
		return true
	}
	cur := s.alerts[i]
	if !newer(ev.Alert, cur) {
		return false
	}
	s.alerts[i] = ev.Alert
	s.reorder()
	return true
}

func newer(in, cur models.Alert) bool {
	if cur.Status == models.StatusResolved && in.Status != models.StatusResolved {
		return false
	}
	if in.Status == models.StatusResolved && cur.Status != models.StatusResolved {
		return true
	}
	return in.UpdatedAt.After(cur.UpdatedAt)
}

// reorder sorts newest first and rebuilds the index. Caller holds mu.
func (s *State) reorder() {
	sort.SliceStable(s.alerts, func(i, j int) bool {
		a, b := s.alerts[i], s.alerts[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	s.index = make(map[string]int, len(s.alerts))
	for i, a := range s.alerts {
		s.index[a.ID] = i
	}
}

// Alerts returns a copy of the list.
func (s *State) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Alert(nil), s.alerts...)
}

func (s *State) Get(id string) (models.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Alert{}, false
	}
	return s.alerts[i], true
}

// Pending counts unresolved alerts.
func (s *State) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if a.Status == models.StatusPending {
			n++
		}
	}
	return n
}
