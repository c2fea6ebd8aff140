package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"SOSBeacon/internal/apiclient"
	"SOSBeacon/internal/models"
	"SOSBeacon/internal/pending"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient answers submissions from a script keyed by message.
type fakeClient struct {
	mu        sync.Mutex
	failures  map[string]error
	submitted []apiclient.Submission
	keys      []string
	gate      chan struct{} // when set, every call waits on it
	entered   chan struct{}
}

func newFakeClient() *fakeClient { return &fakeClient{failures: map[string]error{}} }

func (f *fakeClient) SubmitAlert(ctx context.Context, sub apiclient.Submission, key string) (*models.Alert, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", apiclient.ErrTransport, ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[sub.Message]; err != nil {
		return nil, err
	}
	f.submitted = append(f.submitted, sub)
	f.keys = append(f.keys, key)
	return &models.Alert{ID: "srv-" + sub.Message, Message: sub.Message, Status: models.StatusPending}, nil
}

func (f *fakeClient) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.submitted))
	for _, s := range f.submitted {
		out = append(out, s.Message)
	}
	return out
}

func openStore(t *testing.T) *pending.Store {
	t.Helper()
	s, err := pending.Open(filepath.Join(t.TempDir(), "pending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedStore(t *testing.T, s *pending.Store, msgs ...string) []uint {
	t.Helper()
	ids := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		id, err := s.Save(context.Background(), pending.Payload{Message: m, Location: models.Location{Latitude: 20.5, Longitude: 78.9}})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func remainingMessages(t *testing.T, s *pending.Store) []string {
	t.Helper()
	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(all))
	for _, r := range all {
		out = append(out, r.Message)
	}
	return out
}

func newTestEngine(t *testing.T, s Queue, c Submitter) *Engine {
	t.Helper()
	e, err := NewEngine(s, c, EngineOptions{Logger: zap.NewNop(), SubmitTimeout: 2 * time.Second})
	require.NoError(t, err)
	return e
}

func TestDrainDeliversAllInOrder(t *testing.T) {
	store := openStore(t)
	msgs := []string{"a1", "a2", "a3", "a4", "a5"}
	seedStore(t, store, msgs...)
	client := newFakeClient()

	report, err := newTestEngine(t, store, client).Drain(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report.StoppedBy)
	assert.Equal(t, 5, report.Attempted)
	assert.Len(t, report.Delivered, 5)
	assert.Equal(t, msgs, client.messages())
	assert.Empty(t, remainingMessages(t, store))
}

func TestDrainEmptyStore(t *testing.T) {
	client := newFakeClient()
	report, err := newTestEngine(t, openStore(t), client).Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Empty(t, client.messages())
}

func TestDrainStopsAtTransportFailure(t *testing.T) {
	store := openStore(t)
	seedStore(t, store, "a1", "a2", "a3", "a4", "a5")
	client := newFakeClient()
	client.failures["a3"] = fmt.Errorf("%w: connection refused", apiclient.ErrTransport)

	report, err := newTestEngine(t, store, client).Drain(context.Background())
	require.NoError(t, err)
	assert.True(t, errors.Is(report.StoppedBy, ErrTransport))
	assert.Equal(t, 3, report.Attempted)
	assert.Len(t, report.Delivered, 2)
	assert.Equal(t, 3, report.Remaining)
	assert.Equal(t, []string{"a1", "a2"}, client.messages())
	assert.Equal(t, []string{"a3", "a4", "a5"}, remainingMessages(t, store))

	// connectivity back: the rest goes out in the original order
	delete(client.failures, "a3")
	report, err = newTestEngine(t, store, client).Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Delivered, 3)
	assert.Equal(t, []string{"a1", "a2", "a3", "a4", "a5"}, client.messages())
	assert.Empty(t, remainingMessages(t, store))
}

func TestDrainStopsOnRetriableAndAuthRejections(t *testing.T) {
	for _, status := range []int{401, 403, 408, 409, 425, 429, 500, 503} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			store := openStore(t)
			seedStore(t, store, "a1", "a2")
			client := newFakeClient()
			client.failures["a1"] = &apiclient.RejectedError{StatusCode: status}

			report, err := newTestEngine(t, store, client).Drain(context.Background())
			require.NoError(t, err)
			var rej *RejectedError
			require.ErrorAs(t, report.StoppedBy, &rej)
			assert.Equal(t, status, rej.StatusCode)
			assert.Equal(t, []string{"a1", "a2"}, remainingMessages(t, store))
			assert.Empty(t, report.Rejected)
		})
	}
}

func TestValidationRejectionKeepsRecordAndContinues(t *testing.T) {
	store := openStore(t)
	ids := seedStore(t, store, "a1", "bad", "a3")
	client := newFakeClient()
	client.failures["bad"] = &apiclient.RejectedError{StatusCode: 400, Code: 40001, Message: "An alert message is required"}

	engine := newTestEngine(t, store, client)
	report, err := engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report.StoppedBy)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, ids[1], report.Rejected[0].LocalID)
	assert.Equal(t, "An alert message is required", report.Rejected[0].Reason)
	assert.Equal(t, []string{"a1", "a3"}, client.messages())

	// the malformed record is never removed
	assert.Equal(t, []string{"bad"}, remainingMessages(t, store))
	rec, err := store.Get(context.Background(), ids[1])
	require.NoError(t, err)
	assert.True(t, rec.Rejected())

	// and never blindly resubmitted
	report, err = engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
}

func TestConcurrentDrainsNeverDuplicate(t *testing.T) {
	store := openStore(t)
	seedStore(t, store, "a1", "a2", "a3")
	client := newFakeClient()
	client.gate = make(chan struct{})
	client.entered = make(chan struct{}, 16)
	engine := newTestEngine(t, store, client)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Drain(context.Background())
			assert.NoError(t, err)
		}()
	}
	<-client.entered
	close(client.gate)
	wg.Wait()

	assert.Equal(t, []string{"a1", "a2", "a3"}, client.messages())
	seen := map[string]bool{}
	for _, k := range client.keys {
		assert.False(t, seen[k], "key %s submitted twice", k)
		seen[k] = true
	}
	assert.Empty(t, remainingMessages(t, store))
}

func TestDrainReportsStorageUnavailable(t *testing.T) {
	store := openStore(t)
	seedStore(t, store, "a1")
	require.NoError(t, store.Close())
	client := newFakeClient()

	report, err := newTestEngine(t, store, client).Drain(context.Background())
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.True(t, errors.Is(report.StoppedBy, ErrStorageUnavailable))
	assert.Empty(t, client.messages())
}

// removeFails accepts the submission but cannot delete the local record.
type removeFails struct{ *pending.Store }

func (removeFails) Remove(context.Context, uint) error { return errors.New("disk I/O error") }

func TestRemoveFailureStopsAndKeepsRecord(t *testing.T) {
	store := openStore(t)
	seedStore(t, store, "a1", "a2")
	client := newFakeClient()

	report, err := newTestEngine(t, removeFails{store}, client).Drain(context.Background())
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.Equal(t, 2, report.Remaining)
	assert.Equal(t, []string{"a1"}, client.messages())
	assert.Equal(t, []string{"a1", "a2"}, remainingMessages(t, store))

	// the retry reuses the key so the server can replay instead of duplicating
	report, err = newTestEngine(t, store, client).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.keys[0], client.keys[1])
}

func TestTriggersCoalesce(t *testing.T) {
	store := openStore(t)
	seedStore(t, store, "a1")
	client := newFakeClient()

	drains := make(chan DrainReport, 8)
	engine, err := NewEngine(store, client, EngineOptions{Logger: zap.NewNop(), OnDrain: func(r DrainReport) { drains <- r }})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		engine.Trigger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	select {
	case r := <-drains:
		assert.Len(t, r.Delivered, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no drain ran")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, drains)
	assert.Equal(t, []string{"a1"}, client.messages())
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(nil, newFakeClient(), EngineOptions{})
	assert.Error(t, err)
	_, err = NewEngine(openStore(t), nil, EngineOptions{})
	assert.Error(t, err)
}
