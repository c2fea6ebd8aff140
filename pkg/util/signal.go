package util

import (
	"sync"
)

// SignalHandler receives the sender of a signal and any extra params.
type SignalHandler func(sender any, params ...any)

// Signals is a small synchronous observer registry. Handlers that do slow work
// (mail, SMS) are expected to start their own goroutine.
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SignalHandler
}

func NewSignals() *Signals {
	return &Signals{handlers: make(map[string][]SignalHandler)}
}

func (s *Signals) Connect(name string, handler SignalHandler) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = append(s.handlers[name], handler)
}

func (s *Signals) Emit(name string, sender any, params ...any) {
	s.mu.RLock()
	handlers := append([]SignalHandler(nil), s.handlers[name]...)
	s.mu.RUnlock()
	for _, h := range handlers {
		h(sender, params...)
	}
}

// Count reports how many handlers are connected to name.
func (s *Signals) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers[name])
}
