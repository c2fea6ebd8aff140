package handlers

import (
	"net/http"
	"strings"

	"SOSBeacon/internal/models"
	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/errors"
	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/middleware"
	"SOSBeacon/pkg/response"
	"SOSBeacon/pkg/search"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// handleSubmitAlert accepts a public alert. 201 on creation, 200 when the
// Idempotency-Key matches an alert that already exists.
func (h *Handlers) handleSubmitAlert(c *gin.Context) {
	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.countSubmit("rejected")
		response.Error(c, errors.Validation("Invalid alert payload"))
		return
	}
	req.SubmissionKey = c.GetString(constants.IdempotencyField)

	alert, replayed, err := models.SubmitAlert(h.db, req, middleware.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, errors.ErrValidation) {
			h.countSubmit("rejected")
		}
		response.Error(c, err)
		return
	}
	if replayed {
		h.countSubmit("replayed")
		response.Success(c, http.StatusOK, alert)
		return
	}

	h.countSubmit("created")
	response.Success(c, http.StatusCreated, alert)

	h.publish(constants.EventNewAlert, alert)
	h.signals.Emit(models.SigAlertCreated, alert)
}

func (h *Handlers) handleListAlerts(c *gin.Context) {
	alerts, err := models.ListAlerts(h.db)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": len(alerts), "alerts": alerts})
}

func (h *Handlers) handleGetAlert(c *gin.Context) {
	alert, err := models.GetAlert(h.db, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, alert)
}

// handleResolveAlert is idempotent; alert-updated is only published when
// the status actually changed.
func (h *Handlers) handleResolveAlert(c *gin.Context) {
	alert, changed, err := models.ResolveAlert(h.db, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, alert)
	if !changed {
		return
	}
	if h.metrics != nil {
		h.metrics.AlertResolved()
	}
	h.publish(constants.EventAlertUpdated, alert)
	h.signals.Emit(models.SigAlertUpdated, alert)
}

// handleSearchAlerts runs a bleve query and returns the matching alerts in hit order.
func (h *Handlers) handleSearchAlerts(c *gin.Context) {
	if h.search == nil {
		response.Fail(c, http.StatusServiceUnavailable, "Search is disabled")
		return
	}
	q := search.Query{
		Text:   strings.TrimSpace(c.Query("q")),
		Status: strings.TrimSpace(c.Query("status")),
		From:   cast.ToInt(c.Query("from")),
		Size:   cast.ToInt(c.Query("size")),
	}
	if q.Status != "" && q.Status != models.StatusPending && q.Status != models.StatusResolved {
		response.Error(c, errors.Validation("status must be pending or resolved"))
		return
	}
	if c.Query("lat") != "" || c.Query("lon") != "" {
		lat, errLat := cast.ToFloat64E(c.Query("lat"))
		lon, errLon := cast.ToFloat64E(c.Query("lon"))
		point := models.Location{Latitude: lat, Longitude: lon}
		if errLat != nil || errLon != nil || !point.Valid() {
			response.Error(c, errors.Validation("lat and lon must be valid coordinates"))
			return
		}
		q.Near = &search.GeoPoint{Lat: lat, Lon: lon}
		q.RadiusKm = cast.ToFloat64(c.Query("radius"))
	}

	res, err := h.search.Search(c.Request.Context(), q)
	if err != nil {
		response.Error(c, errors.Internal(err, "search failed"))
		return
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	var found []models.Alert
	if len(ids) > 0 {
		if err := h.db.Where("id IN ?", ids).Find(&found).Error; err != nil {
			response.Error(c, errors.Internal(err, "failed to load search results"))
			return
		}
	}
	byID := make(map[string]models.Alert, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	alerts := make([]models.Alert, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			alerts = append(alerts, a)
		}
	}
	response.JSON(c, http.StatusOK, gin.H{"count": len(alerts), "total": res.Total, "alerts": alerts})
}

// handleAlertStream pushes relay events over server-sent events for
// dashboards that cannot hold a websocket.
func (h *Handlers) handleAlertStream(c *gin.Context) {
	if h.deps.Events == nil {
		response.Fail(c, http.StatusServiceUnavailable, "Event stream is disabled")
		return
	}
	h.deps.Events.Serve(c, "sse_"+uuid.NewString(), constants.AdminRoom)
}

func (h *Handlers) publish(event string, alert *models.Alert) {
	h.relay.Publish(constants.AdminRoom, event, alert)
	if h.metrics != nil {
		h.metrics.RelayPublished(event)
	}
	logger.Debug("relay event published", zap.String("event", event), zap.String("alert_id", alert.ID))
}

func (h *Handlers) countSubmit(result string) {
	if h.metrics != nil {
		h.metrics.AlertSubmitted(result)
	}
}
