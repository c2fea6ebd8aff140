package syncer

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"SOSBeacon/internal/apiclient"
	handlers "SOSBeacon/internal/handler"
	"SOSBeacon/internal/models"
	"SOSBeacon/pkg/middleware"
	"SOSBeacon/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// switchable lets the test take the client offline.
type switchable struct {
	*apiclient.Client
	offline bool
}

func (s *switchable) Health(ctx context.Context) error {
	if s.offline {
		return apiclient.ErrTransport
	}
	return s.Client.Health(ctx)
}

func newAlertServer(t *testing.T, name string) (*httptest.Server, *websocket.Recorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))
	_, _, err = models.EnsureAdmin(db, "admin@example.com", "secret1")
	require.NoError(t, err)

	j, err := middleware.NewJWT("e2e-secret", time.Hour)
	require.NoError(t, err)
	relay := &websocket.Recorder{}
	engine := gin.New()
	handlers.NewHandlers(db, handlers.Deps{JWT: j, Relay: relay}).Register(engine)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, relay
}

func TestOfflineSubmissionReachesAdminAfterReconnect(t *testing.T) {
	srv, relay := newAlertServer(t, "e2e")
	ctx := context.Background()
	client := &switchable{Client: apiclient.New(srv.URL, "", nil), offline: true}
	store := openStore(t)
	syncEngine, err := NewEngine(store, client, EngineOptions{Logger: zap.NewNop()})
	require.NoError(t, err)

	monitor := NewMonitor(client, time.Minute, syncEngine.Trigger)
	monitor.Probe(ctx)
	b := newTestBeacon(store, client, monitor)

	res, err := b.Send(ctx, help())
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, res.Outcome)
	assert.NotZero(t, res.LocalID)

	client.offline = false
	require.True(t, monitor.Probe(ctx))

	// the reconnect queued exactly one trigger; run it
	runCtx, cancel := context.WithCancel(ctx)
	drained := make(chan DrainReport, 1)
	syncEngine.onDrain = func(r DrainReport) { drained <- r }
	go func() { _ = syncEngine.Run(runCtx) }()
	var report DrainReport
	select {
	case report = <-drained:
	case <-time.After(10 * time.Second):
		t.Fatal("drain did not run")
	}
	cancel()

	require.Len(t, report.Delivered, 1)
	delivered := report.Delivered[0].Alert
	assert.Equal(t, models.StatusPending, delivered.Status)
	assert.Empty(t, remainingMessages(t, store))

	admin := apiclient.New(srv.URL, "", nil)
	_, err = admin.Login(ctx, "admin@example.com", "secret1")
	require.NoError(t, err)
	alerts, err := admin.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, delivered.ID, alerts[0].ID)
	assert.Equal(t, "Help", alerts[0].Message)

	events := relay.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "new-alert", events[0].Type)
}

func TestDrainDeliversDespiteExpiredDeviceToken(t *testing.T) {
	srv, relay := newAlertServer(t, "e2e_stale")
	ctx := context.Background()

	old, err := middleware.NewJWT("e2e-secret", time.Nanosecond)
	require.NoError(t, err)
	stale, err := old.Issue("device-1", "user")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	store := openStore(t)
	_, err = store.Save(ctx, help())
	require.NoError(t, err)

	syncEngine, err := NewEngine(store, apiclient.New(srv.URL, stale, nil), EngineOptions{Logger: zap.NewNop()})
	require.NoError(t, err)
	report, err := syncEngine.Drain(ctx)
	require.NoError(t, err)
	assert.NoError(t, report.StoppedBy)
	require.Len(t, report.Delivered, 1)
	assert.Nil(t, report.Delivered[0].Alert.UserID)
	assert.Empty(t, remainingMessages(t, store))
	assert.Len(t, relay.Snapshot(), 1)
}
