package listeners

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SOSBeacon/internal/models"
	"SOSBeacon/pkg/metrics"
	"SOSBeacon/pkg/notification"
	"SOSBeacon/pkg/search"
	"SOSBeacon/pkg/util"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMail struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMail) Send(_ context.Context, to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to+"|"+html)
	return nil
}

type failingSMS struct{}

func (failingSMS) Send(context.Context, string, string) error { return errors.New("gateway down") }

func TestAlertCreatedNotifiesAndIndexes(t *testing.T) {
	engine, err := search.New(search.Config{QueryTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer engine.Close()

	mail := &fakeMail{}
	m := metrics.NewMetrics()
	sig := util.NewSignals()
	l := InitAlertListeners(sig, &AlertListeners{
		Notifier: &notification.AlertNotifier{Mail: mail, SMS: failingSMS{}, AdminEmail: "ops@example.com", AdminPhone: "+15550100"},
		Search:   engine,
		Metrics:  m,
	})

	alert := &models.Alert{ID: "a1", Message: "Help", Location: models.Location{Latitude: 20.5, Longitude: 78.9}, Status: models.StatusPending, CreatedAt: time.Now()}
	sig.Emit(models.SigAlertCreated, alert)
	l.Wait()

	mail.mu.Lock()
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.sent[0], "ops@example.com|")
	assert.Contains(t, mail.sent[0], "google.com/maps?q=20.500000,78.900000")
	mail.mu.Unlock()

	// one sent email series and one failed sms series
	n, err := testutil.GatherAndCount(m.Registry(), "sosbeacon_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := engine.Search(context.Background(), search.Query{Status: models.StatusPending})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "a1", res.Hits[0].ID)

	resolved := *alert
	resolved.Status = models.StatusResolved
	sig.Emit(models.SigAlertUpdated, &resolved)

	res, err = engine.Search(context.Background(), search.Query{Status: models.StatusResolved})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)
}

func TestIgnoresUnexpectedSender(t *testing.T) {
	sig := util.NewSignals()
	l := InitAlertListeners(sig, &AlertListeners{})
	sig.Emit(models.SigAlertCreated, "not an alert")
	l.Wait()
}

type blockingMail struct {
	started chan struct{}
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (b *blockingMail) Send(ctx context.Context, _, _, _ string) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return nil
}

func TestCloseWaitsAndRejectsLateNotifications(t *testing.T) {
	mail := &blockingMail{started: make(chan struct{}, 2), release: make(chan struct{})}
	sig := util.NewSignals()
	l := InitAlertListeners(sig, &AlertListeners{
		Notifier: &notification.AlertNotifier{Mail: mail, AdminEmail: "ops@example.com"},
	})

	alert := &models.Alert{ID: "a1", Message: "Help", Status: models.StatusPending}
	sig.Emit(models.SigAlertCreated, alert)
	<-mail.started

	closed := make(chan struct{})
	go func() {
		l.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a notification was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(mail.release)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	sig.Emit(models.SigAlertCreated, alert)
	l.Wait()
	mail.mu.Lock()
	assert.Equal(t, 1, mail.calls)
	mail.mu.Unlock()
}
