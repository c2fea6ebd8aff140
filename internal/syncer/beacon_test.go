package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"SOSBeacon/internal/apiclient"
	"SOSBeacon/internal/models"
	"SOSBeacon/internal/pending"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticConn bool

func (c staticConn) Online() bool { return bool(c) }

func help() pending.Payload {
	return pending.Payload{Message: "Help", Location: models.Location{Latitude: 20.5, Longitude: 78.9}}
}

func newTestBeacon(s Saver, c Submitter, conn Connectivity) *Beacon {
	b := NewBeacon(s, c, conn, time.Second)
	b.log = zap.NewNop()
	return b
}

func TestSendOfflineQueuesWithoutNetwork(t *testing.T) {
	store := openStore(t)
	client := newFakeClient()
	var queued atomic.Int32
	b := newTestBeacon(store, client, staticConn(false))
	b.OnQueued = func() { queued.Add(1) }

	res, err := b.Send(context.Background(), help())
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, res.Outcome)
	assert.NotZero(t, res.LocalID)
	assert.Empty(t, client.messages())
	assert.EqualValues(t, 1, queued.Load())

	rec, err := store.Get(context.Background(), res.LocalID)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.SubmissionKey)
	assert.NotEmpty(t, rec.Timestamp)
}

func TestSendOnlineDelivers(t *testing.T) {
	store := openStore(t)
	client := newFakeClient()
	res, err := newTestBeacon(store, client, staticConn(true)).Send(context.Background(), help())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Equal(t, "srv-Help", res.Alert.ID)
	assert.Empty(t, remainingMessages(t, store))
}

func TestSendQueuesOnTransportFailureWithSameKey(t *testing.T) {
	store := openStore(t)
	client := newFakeClient()
	client.failures["Help"] = fmt.Errorf("%w: timeout", apiclient.ErrTransport)

	p := help()
	p.SubmissionKey = "fixed-key"
	res, err := newTestBeacon(store, client, nil).Send(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, res.Outcome)

	rec, err := store.Get(context.Background(), res.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "fixed-key", rec.SubmissionKey)
}

func TestSendQueuesOnRetriableRejection(t *testing.T) {
	store := openStore(t)
	client := newFakeClient()
	client.failures["Help"] = &apiclient.RejectedError{StatusCode: 503}
	res, err := newTestBeacon(store, client, nil).Send(context.Background(), help())
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, res.Outcome)
}

func TestSendSurfacesRejections(t *testing.T) {
	store := openStore(t)
	client := newFakeClient()
	client.failures["Help"] = &apiclient.RejectedError{StatusCode: 422, Message: "nope"}
	_, err := newTestBeacon(store, client, nil).Send(context.Background(), help())
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Empty(t, remainingMessages(t, store))
}

func TestSendMalformedIsNeverStored(t *testing.T) {
	store := openStore(t)
	client := newFakeClient()
	b := newTestBeacon(store, client, staticConn(false))

	for _, p := range []pending.Payload{
		{Location: models.Location{Latitude: 1, Longitude: 1}},
		{Message: "   ", Location: models.Location{Latitude: 1, Longitude: 1}},
		{Message: "x", Location: models.Location{Latitude: 100, Longitude: 1}},
		{Message: "x", Timestamp: "not a time"},
	} {
		_, err := b.Send(context.Background(), p)
		assert.True(t, errors.Is(err, ErrValidation), "%+v", p)
	}
	assert.Empty(t, remainingMessages(t, store))
	assert.Empty(t, client.messages())
}

func TestSendSurfacesStorageFailure(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Close())
	_, err := newTestBeacon(store, newFakeClient(), staticConn(false)).Send(context.Background(), help())
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
}

type flakyProber struct{ up atomic.Bool }

func (p *flakyProber) Health(context.Context) error {
	if p.up.Load() {
		return nil
	}
	return apiclient.ErrTransport
}

func TestMonitorFiresOnEachReconnect(t *testing.T) {
	prober := &flakyProber{}
	var reconnects atomic.Int32
	m := NewMonitor(prober, time.Minute, func() { reconnects.Add(1) })
	ctx := context.Background()

	assert.False(t, m.Probe(ctx))
	assert.False(t, m.Online())

	prober.up.Store(true)
	assert.True(t, m.Probe(ctx))
	assert.True(t, m.Probe(ctx))
	assert.EqualValues(t, 1, reconnects.Load())

	prober.up.Store(false)
	m.Probe(ctx)
	prober.up.Store(true)
	m.Probe(ctx)
	assert.EqualValues(t, 2, reconnects.Load())
}

func TestMonitorRunProbesImmediately(t *testing.T) {
	prober := &flakyProber{}
	prober.up.Store(true)
	fired := make(chan struct{}, 1)
	m := NewMonitor(prober, time.Hour, func() { fired <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not probe")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
