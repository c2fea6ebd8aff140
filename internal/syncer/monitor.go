package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/scheduler"

	"go.uber.org/zap"
)

// Prober checks whether the server answers.
type Prober interface {
	Health(ctx context.Context) error
}

// Monitor polls the server and calls onReconnect on every offline to online
// transition. It starts offline, so the first successful probe also fires.
type Monitor struct {
	prober      Prober
	interval    time.Duration
	timeout     time.Duration
	onReconnect func()
	online      atomic.Bool
}

func NewMonitor(prober Prober, interval time.Duration, onReconnect func()) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{prober: prober, interval: interval, timeout: 5 * time.Second, onReconnect: onReconnect}
}

func (m *Monitor) Online() bool { return m.online.Load() }

// Probe runs one health check and returns the new state.
func (m *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Health(pctx)
	cancel()

	up := err == nil
	was := m.online.Swap(up)
	switch {
	case up && !was:
		logger.Info("server reachable")
		if m.onReconnect != nil {
			m.onReconnect()
		}
	case !up && was:
		logger.Warn("server unreachable", zap.Error(err))
	}
	return up
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Probe(ctx)
	s := scheduler.NewWithContext(ctx)
	s.EveryJitter(m.interval, 0.1, scheduler.FuncJob(func(ctx context.Context) { m.Probe(ctx) }))
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}
