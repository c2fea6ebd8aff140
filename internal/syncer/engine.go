package syncer

import (
	"context"
	"errors"
	"time"

	"SOSBeacon/internal/apiclient"
	"SOSBeacon/internal/models"
	"SOSBeacon/internal/pending"
	"SOSBeacon/pkg/logger"

	"go.uber.org/zap"
)

// Queue is the part of the pending store a drain needs.
type Queue interface {
	ListDeliverable(ctx context.Context) ([]pending.PendingAlert, error)
	Remove(ctx context.Context, localID uint) error
	MarkRejected(ctx context.Context, localID uint, reason string) error
}

// Submitter delivers one alert to the server.
type Submitter interface {
	SubmitAlert(ctx context.Context, sub apiclient.Submission, key string) (*models.Alert, error)
}

type EngineOptions struct {
	Logger *zap.Logger
	// SubmitTimeout bounds each submission; expiry counts as a transport failure.
	SubmitTimeout time.Duration
	// OnDrain observes every finished drain run by Run.
	OnDrain func(DrainReport)
}

type Delivery struct {
	LocalID uint
	Alert   *models.Alert
}

type Rejection struct {
	LocalID    uint
	StatusCode int
	Reason     string
}

// DrainReport describes one drain. StoppedBy is the failure that ended the
// drain early, nil when every deliverable record was processed.
type DrainReport struct {
	Attempted int
	Delivered []Delivery
	Rejected  []Rejection
	Remaining int
	StoppedBy error
}

// Engine drains the pending queue against the server, oldest first, one
// drain at a time.
type Engine struct {
	store   Queue
	client  Submitter
	log     *zap.Logger
	timeout time.Duration
	onDrain func(DrainReport)

	sem     chan struct{}
	trigger chan struct{}
}

func NewEngine(store Queue, client Submitter, opts EngineOptions) (*Engine, error) {
	if store == nil {
		return nil, errors.New("syncer: store is required")
	}
	if client == nil {
		return nil, errors.New("syncer: client is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.L()
	}
	timeout := opts.SubmitTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Engine{
		store:   store,
		client:  client,
		log:     log,
		timeout: timeout,
		onDrain: opts.OnDrain,
		sem:     make(chan struct{}, 1),
		trigger: make(chan struct{}, 1),
	}, nil
}

// Drain submits every deliverable record in order. It waits for a drain
// already in progress and then reads the store afresh, so a record is never
// in flight twice. The returned error is non-nil only for local storage
// failures; network and server stops are reported in DrainReport.StoppedBy.
func (e *Engine) Drain(ctx context.Context) (DrainReport, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return DrainReport{StoppedBy: ctx.Err()}, ctx.Err()
	}
	defer func() { <-e.sem }()

	var report DrainReport
	records, err := e.store.ListDeliverable(ctx)
	if err != nil {
		err = asStorageError(err)
		report.StoppedBy = err
		return report, err
	}

	for i, rec := range records {
		report.Attempted++
		alert, err := e.submit(ctx, rec)
		if err == nil {
			if rmErr := e.store.Remove(ctx, rec.LocalID); rmErr != nil {
				// the server has it; the retry is answered from the submission key
				rmErr = asStorageError(rmErr)
				e.log.Error("remove delivered alert failed",
					zap.Uint("local_id", rec.LocalID), zap.String("alert_id", alert.ID), zap.Error(rmErr))
				report.StoppedBy = rmErr
				report.Remaining = len(records) - i
				return report, rmErr
			}
			report.Delivered = append(report.Delivered, Delivery{LocalID: rec.LocalID, Alert: alert})
			continue
		}

		if classify(err) == dispositionReject {
			var rej *RejectedError
			errors.As(err, &rej)
			reason := rej.Message
			if reason == "" {
				reason = rej.Error()
			}
			if mkErr := e.store.MarkRejected(ctx, rec.LocalID, reason); mkErr != nil {
				mkErr = asStorageError(mkErr)
				report.StoppedBy = mkErr
				report.Remaining = len(records) - i
				return report, mkErr
			}
			e.log.Warn("server rejected queued alert; kept for review",
				zap.Uint("local_id", rec.LocalID), zap.Int("status", rej.StatusCode), zap.String("reason", reason))
			report.Rejected = append(report.Rejected, Rejection{LocalID: rec.LocalID, StatusCode: rej.StatusCode, Reason: reason})
			continue
		}

		e.log.Info("drain stopped",
			zap.Uint("local_id", rec.LocalID), zap.Int("remaining", len(records)-i), zap.Error(err))
		report.StoppedBy = err
		report.Remaining = len(records) - i
		return report, nil
	}
	return report, nil
}

func (e *Engine) submit(ctx context.Context, rec pending.PendingAlert) (*models.Alert, error) {
	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.client.SubmitAlert(sctx, apiclient.Submission{
		Message:   rec.Message,
		Location:  rec.Location,
		Timestamp: rec.Timestamp,
	}, rec.SubmissionKey)
}

// Trigger requests a drain from Run. Requests made while one is pending
// collapse into it; it never blocks.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run drains on every trigger until ctx is done. Failures are logged only.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.trigger:
			report, err := e.Drain(ctx)
			if err != nil && ctx.Err() == nil {
				e.log.Error("drain failed", zap.Error(err))
			} else if report.Attempted > 0 {
				e.log.Info("drain finished",
					zap.Int("delivered", len(report.Delivered)),
					zap.Int("rejected", len(report.Rejected)),
					zap.Int("remaining", report.Remaining))
			}
			if e.onDrain != nil {
				e.onDrain(report)
			}
		}
	}
}
