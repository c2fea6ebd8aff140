package models

import (
	"math"
	"strings"
	"time"

	"SOSBeacon/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusPending  = "pending"
	StatusResolved = "resolved"

	MaxMessageLength = 2000
)

// Signals emitted by the handlers after a write commits.
const (
	SigAlertCreated = "alert.created"
	SigAlertUpdated = "alert.updated"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both coordinates are finite and in range.
func (l Location) Valid() bool {
	return finite(l.Latitude) && finite(l.Longitude) &&
		l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Alert is an emergency report. Status only moves pending -> resolved.
type Alert struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	UserID        *string    `json:"userId" gorm:"size:36;index"`
	Message       string     `json:"message" gorm:"size:2000;not null"`
	Location      Location   `json:"location" gorm:"embedded;embeddedPrefix:location_"`
	Status        string     `json:"status" gorm:"size:16;index;not null;default:pending"`
	Timestamp     time.Time  `json:"timestamp"`
	SubmissionKey *string    `json:"-" gorm:"size:128;uniqueIndex"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	return nil
}

// LocationInput uses pointers so a missing coordinate is distinguishable from zero.
type LocationInput struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type SubmitRequest struct {
	Message   string         `json:"message"`
	Location  *LocationInput `json:"location"`
	Timestamp string         `json:"timestamp,omitempty"`
	// SubmissionKey comes from the Idempotency-Key header, not the body.
	SubmissionKey string `json:"-"`
}

// Validate checks the payload and returns the normalised alert fields.
func (r SubmitRequest) Validate() (message string, loc Location, ts time.Time, err error) {
	message = strings.TrimSpace(r.Message)
	if message == "" {
		return "", Location{}, time.Time{}, errors.Validation("An alert message is required")
	}
	if len(message) > MaxMessageLength {
		return "", Location{}, time.Time{}, errors.Validation("Alert message must be at most %d characters", MaxMessageLength)
	}
	if r.Location == nil || r.Location.Latitude == nil {
		return "", Location{}, time.Time{}, errors.Validation("Latitude is required")
	}
	if r.Location.Longitude == nil {
		return "", Location{}, time.Time{}, errors.Validation("Longitude is required")
	}
	loc = Location{Latitude: *r.Location.Latitude, Longitude: *r.Location.Longitude}
	if !loc.Valid() {
		return "", Location{}, time.Time{}, errors.Validation("Location coordinates are out of range")
	}
	if r.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil {
			return "", Location{}, time.Time{}, errors.Validation("Timestamp must be an ISO-8601 date")
		}
		ts = ts.UTC()
	}
	return message, loc, ts, nil
}

// SubmitAlert validates and stores a new pending alert. A request whose
// submission key is already stored returns the existing alert with
// replayed set and creates nothing.
func SubmitAlert(db *gorm.DB, req SubmitRequest, submitter *string) (*Alert, bool, error) {
	message, loc, ts, err := req.Validate()
	if err != nil {
		return nil, false, err
	}

	var key *string
	if k := strings.TrimSpace(req.SubmissionKey); k != "" {
		key = &k
		if existing, err := findBySubmissionKey(db, k); err != nil {
			return nil, false, err
		} else if existing != nil {
			return existing, true, nil
		}
	}

	now := time.Now().UTC()
	if ts.IsZero() {
		ts = now
	}
	alert := &Alert{
		UserID:        submitter,
		Message:       message,
		Location:      loc,
		Status:        StatusPending,
		Timestamp:     ts,
		SubmissionKey: key,
	}
	if err := db.Create(alert).Error; err != nil {
		// lost a race on the unique submission key
		if key != nil {
			if existing, findErr := findBySubmissionKey(db, *key); findErr == nil && existing != nil {
				return existing, true, nil
			}
		}
		return nil, false, errors.Internal(err, "failed to create alert")
	}
	return alert, false, nil
}

func findBySubmissionKey(db *gorm.DB, key string) (*Alert, error) {
	var alert Alert
	err := db.Where("submission_key = ?", key).Limit(1).Find(&alert).Error
	if err != nil {
		return nil, errors.Internal(err, "failed to look up submission key")
	}
	if alert.ID == "" {
		return nil, nil
	}
	return &alert, nil
}

// GetAlert returns the alert or a NotFound error.
func GetAlert(db *gorm.DB, id string) (*Alert, error) {
	var alert Alert
	err := db.Where("id = ?", id).Limit(1).Find(&alert).Error
	if err != nil {
		return nil, errors.Internal(err, "failed to load alert")
	}
	if alert.ID == "" {
		return nil, errors.NotFound("Alert not found")
	}
	return &alert, nil
}

// ListAlerts returns every alert, newest first.
func ListAlerts(db *gorm.DB) ([]Alert, error) {
	alerts := []Alert{}
	if err := db.Order("created_at DESC").Order("id DESC").Find(&alerts).Error; err != nil {
		return nil, errors.Internal(err, "failed to list alerts")
	}
	return alerts, nil
}

// ResolveAlert marks the alert resolved. Resolving twice is a no-op and
// changed is false on the second call.
func ResolveAlert(db *gorm.DB, id string) (*Alert, bool, error) {
	now := time.Now().UTC()
	res := db.Model(&Alert{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{"status": StatusResolved, "resolved_at": now, "updated_at": now})
	if res.Error != nil {
		return nil, false, errors.Internal(res.Error, "failed to resolve alert")
	}
	alert, err := GetAlert(db, id)
	if err != nil {
		return nil, false, err
	}
	return alert, res.RowsAffected > 0, nil
}

// CountAlerts reports totals by status.
func CountAlerts(db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := db.Model(&Alert{}).Select("status, count(*) as total").Group("status").Scan(&rows).Error; err != nil {
		return nil, errors.Internal(err, "failed to count alerts")
	}
	out := map[string]int64{StatusPending: 0, StatusResolved: 0}
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}
