package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

type Cron struct {
	c   *cron.Cron
	loc *time.Location
	ctx context.Context
}

// NewCron builds a five-field cron with panic recovery. Jobs receive ctx.
func NewCron(ctx context.Context, loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	return &Cron{c: c, loc: loc, ctx: ctx}
}

// Validate reports whether expr parses as a standard cron expression.
func Validate(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { ctx := cr.c.Stop(); <-ctx.Done() }

func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(cr.ctx) })
}

func (cr *Cron) AddWithCtx(expr string, fn func(ctx context.Context)) (cron.EntryID, error) {
	return cr.Add(expr, FuncJob(fn))
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
