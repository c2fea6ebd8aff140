package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Scheduler runs jobs on goroutines bound to one context; Stop cancels them all
// and waits for running jobs to return.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	return NewWithContext(context.Background())
}

func NewWithContext(parent context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) Every(d time.Duration, job Job) { s.EveryJitter(d, 0, job) }

// EveryJitter waits d plus a random share of jitter (0..1) of d between runs.
func (s *Scheduler) EveryJitter(d time.Duration, jitter float64, job Job) {
	if d <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loopEvery(d, jitter, job)
	}()
}

func (s *Scheduler) OnceAfter(d time.Duration, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.onceAfter(d, job)
	}()
}

func (s *Scheduler) loopEvery(d time.Duration, jitter float64, job Job) {
	timer := time.NewTimer(withJitter(d, jitter))
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			job.Run(s.ctx)
			timer.Reset(withJitter(d, jitter))
		}
	}
}

func (s *Scheduler) onceAfter(d time.Duration, job Job) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
		job.Run(s.ctx)
	}
}

func withJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	if jitter > 1 {
		jitter = 1
	}
	return d + time.Duration(rand.Float64()*jitter*float64(d))
}
