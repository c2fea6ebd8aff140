package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMonitorMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(MonitorMiddleware(m))
	r.GET("/alerts/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/alerts/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/alerts/:id", "404")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics()
	m.AlertSubmitted("created")
	m.AlertSubmitted("created")
	m.AlertSubmitted("replayed")
	m.AlertResolved()
	m.RelayPublished("new-alert")
	m.Notification("email", nil)
	m.Notification("sms", errors.New("boom"))
	m.OnDeny("/api/v1/alerts")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsSubmitted.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsResolved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsOut.WithLabelValues("sms", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitDeny.WithLabelValues("/api/v1/alerts")))
}

func TestGormPluginRecordsQueries(t *testing.T) {
	m := NewMetrics()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Use(NewGormPlugin(m)))

	type Probe struct{ ID uint }
	require.NoError(t, db.AutoMigrate(&Probe{}))
	require.NoError(t, db.Create(&Probe{}).Error)
	var out []Probe
	require.NoError(t, db.Find(&out).Error)

	// one series each for create and query on probes, plus the migration
	assert.GreaterOrEqual(t, testutil.CollectAndCount(m.dbQueryDuration), 2)
}
