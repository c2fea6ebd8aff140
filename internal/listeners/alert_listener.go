package listeners

import (
	"context"
	"sync"
	"time"

	"SOSBeacon/internal/models"
	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/metrics"
	"SOSBeacon/pkg/notification"
	"SOSBeacon/pkg/search"
	"SOSBeacon/pkg/util"

	"go.uber.org/zap"
)

// AlertListeners reacts to committed alert writes. Notifications run in the
// background; failures are logged and counted, never surfaced to the submitter.
type AlertListeners struct {
	Notifier *notification.AlertNotifier
	Search   search.Engine
	Metrics  *metrics.Metrics
	Timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// InitAlertListeners connects l to sig.
func InitAlertListeners(sig *util.Signals, l *AlertListeners) *AlertListeners {
	if l.Timeout <= 0 {
		l.Timeout = 30 * time.Second
	}
	// new alert - notify admins by email and SMS, index for search
	sig.Connect(models.SigAlertCreated, func(sender any, params ...any) {
		alert, ok := sender.(*models.Alert)
		if !ok {
			return
		}
		snapshot := *alert
		l.notify(snapshot)
		l.index(snapshot)
	})
	// status change - keep the index current
	sig.Connect(models.SigAlertUpdated, func(sender any, params ...any) {
		alert, ok := sender.(*models.Alert)
		if !ok {
			return
		}
		l.index(*alert)
	})
	return l
}

// Wait blocks until in-flight notifications finish.
func (l *AlertListeners) Wait() { l.wg.Wait() }

// Close stops starting new notifications and waits for in-flight ones.
// Alerts committed after Close are still indexed but not notified.
func (l *AlertListeners) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *AlertListeners) notify(alert models.Alert) {
	if l.Notifier == nil {
		return
	}
	notice := notification.AlertNotice{
		ID:        alert.ID,
		Message:   alert.Message,
		Latitude:  alert.Location.Latitude,
		Longitude: alert.Location.Longitude,
		Timestamp: alert.Timestamp,
	}
	l.goWithTimeout("email", func(ctx context.Context) error { return l.Notifier.NotifyEmail(ctx, notice) })
	l.goWithTimeout("sms", func(ctx context.Context) error { return l.Notifier.NotifySMS(ctx, notice) })
}

func (l *AlertListeners) index(alert models.Alert) {
	if l.Search == nil {
		return
	}
	doc := search.AlertDoc{
		ID:        alert.ID,
		Message:   alert.Message,
		Status:    alert.Status,
		Latitude:  alert.Location.Latitude,
		Longitude: alert.Location.Longitude,
		CreatedAt: alert.CreatedAt,
	}
	// indexed inline so a resolve can never be overwritten by a late create
	ctx, cancel := context.WithTimeout(context.Background(), l.Timeout)
	defer cancel()
	if err := l.Search.Index(ctx, doc); err != nil {
		logger.Warn("index alert failed", zap.String("alert_id", doc.ID), zap.Error(err))
	}
}

func (l *AlertListeners) goWithTimeout(channel string, fn func(ctx context.Context) error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		logger.Warn("alert notification skipped during shutdown", zap.String("channel", channel))
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.Timeout)
		defer cancel()
		err := fn(ctx)
		if l.Metrics != nil {
			l.Metrics.Notification(channel, err)
		}
		if err != nil {
			logger.Warn("send alert notification failed", zap.String("channel", channel), zap.Error(err))
		}
	}()
}

// Reindex rebuilds the search index from the database.
func Reindex(ctx context.Context, engine search.Engine, alerts []models.Alert) error {
	docs := make([]search.AlertDoc, 0, len(alerts))
	for _, a := range alerts {
		docs = append(docs, search.AlertDoc{
			ID:        a.ID,
			Message:   a.Message,
			Status:    a.Status,
			Latitude:  a.Location.Latitude,
			Longitude: a.Location.Longitude,
			CreatedAt: a.CreatedAt,
		})
	}
	return engine.IndexBatch(ctx, docs)
}
