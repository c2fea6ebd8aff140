package syncer

import (
	"context"
	"errors"
	"strings"
	"time"

	"SOSBeacon/internal/apiclient"
	"SOSBeacon/internal/models"
	"SOSBeacon/internal/pending"
	"SOSBeacon/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Outcome int

const (
	OutcomeSent Outcome = iota + 1
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeQueued:
		return "queued"
	}
	return "unknown"
}

// Result is the definitive answer for one interactive submission.
type Result struct {
	Outcome Outcome
	Alert   *models.Alert // set when sent
	LocalID uint          // set when queued
}

// Saver queues a payload locally.
type Saver interface {
	Save(ctx context.Context, p pending.Payload) (uint, error)
}

// Connectivity reports whether the server is believed reachable.
type Connectivity interface {
	Online() bool
}

type Beacon struct {
	store   Saver
	client  Submitter
	conn    Connectivity
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	// OnQueued runs after a payload is stored locally, e.g. to schedule a drain.
	OnQueued func()
}

// NewBeacon wires the submission path. conn may be nil, meaning always try online.
func NewBeacon(store Saver, client Submitter, conn Connectivity, timeout time.Duration) *Beacon {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Beacon{store: store, client: client, conn: conn, timeout: timeout, log: logger.L(), now: time.Now}
}

// Send submits p now when online and queues it otherwise. Transport failures
// and retriable rejections also queue. A malformed payload is never stored and
// comes back as ErrValidation; a storage failure while queueing is returned.
func (b *Beacon) Send(ctx context.Context, p pending.Payload) (Result, error) {
	if err := validatePayload(p); err != nil {
		return Result{}, err
	}
	p.Message = strings.TrimSpace(p.Message)
	if p.SubmissionKey == "" {
		p.SubmissionKey = uuid.NewString()
	}
	if p.Timestamp == "" {
		p.Timestamp = b.now().UTC().Format(time.RFC3339Nano)
	}

	if b.conn != nil && !b.conn.Online() {
		return b.queue(ctx, p, nil)
	}

	sctx, cancel := context.WithTimeout(ctx, b.timeout)
	alert, err := b.client.SubmitAlert(sctx, apiclient.Submission{
		Message:   p.Message,
		Location:  p.Location,
		Timestamp: p.Timestamp,
	}, p.SubmissionKey)
	cancel()
	if err == nil {
		return Result{Outcome: OutcomeSent, Alert: alert}, nil
	}

	var rej *RejectedError
	if errors.As(err, &rej) && !rej.Retriable() {
		return Result{}, err
	}
	return b.queue(ctx, p, err)
}

func (b *Beacon) queue(ctx context.Context, p pending.Payload, cause error) (Result, error) {
	id, err := b.store.Save(ctx, p)
	if err != nil {
		return Result{}, asStorageError(err)
	}
	fields := []zap.Field{zap.Uint("local_id", id)}
	if cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	b.log.Info("alert queued for later delivery", fields...)
	if b.OnQueued != nil {
		b.OnQueued()
	}
	return Result{Outcome: OutcomeQueued, LocalID: id}, nil
}

// validatePayload applies the same rules the server enforces.
func validatePayload(p pending.Payload) error {
	lat, lon := p.Location.Latitude, p.Location.Longitude
	_, _, _, err := models.SubmitRequest{
		Message:   p.Message,
		Location:  &models.LocationInput{Latitude: &lat, Longitude: &lon},
		Timestamp: p.Timestamp,
	}.Validate()
	return err
}
