// Package pending is the client-side queue of alerts that have not been
// confirmed by the server. Records survive restarts in a local SQLite file.
package pending

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"SOSBeacon/internal/models"
	"SOSBeacon/pkg/util"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrStorageUnavailable is returned by every operation when the store
// cannot be opened, has been closed, or the file cannot be read or written.
var ErrStorageUnavailable = errors.New("local storage unavailable")

// PendingAlert is a queued submission. LocalID is assigned by the store and
// gives the delivery order.
type PendingAlert struct {
	LocalID       uint            `json:"localId" gorm:"primaryKey;autoIncrement"`
	SubmissionKey string          `json:"submissionKey" gorm:"size:64;uniqueIndex;not null"`
	Message       string          `json:"message" gorm:"not null"`
	Location      models.Location `json:"location" gorm:"embedded;embeddedPrefix:location_"`
	Timestamp     string          `json:"timestamp"`
	RejectedAt    *time.Time      `json:"rejectedAt,omitempty" gorm:"index"`
	RejectReason  string          `json:"rejectReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (PendingAlert) TableName() string { return "pending_alerts" }

// Rejected reports whether the server refused this record as malformed.
func (p PendingAlert) Rejected() bool { return p.RejectedAt != nil }

// Payload is what the user submitted.
type Payload struct {
	Message       string          `json:"message"`
	Location      models.Location `json:"location"`
	Timestamp     string          `json:"timestamp,omitempty"`
	SubmissionKey string          `json:"-"`
}

type Store struct {
	mu     sync.RWMutex
	db     *gorm.DB
	closed bool
	now    func() time.Time
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty store path", ErrStorageUnavailable)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, unavailable(err)
		}
	}
	db, err := util.InitDatabase("sqlite", path, logger.Silent)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := db.AutoMigrate(&PendingAlert{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, unavailable(err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// session returns the db for one operation, or ErrStorageUnavailable once closed.
// The caller must hold s.mu.RLock.
func (s *Store) session(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.closed || s.db == nil {
		return nil, ErrStorageUnavailable
	}
	return s.db.WithContext(ctx), nil
}

// Save appends p and returns its local id. It never overwrites an existing
// record and never touches the network.
func (s *Store) Save(ctx context.Context, p Payload) (uint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.session(ctx)
	if err != nil {
		return 0, err
	}
	rec := PendingAlert{
		SubmissionKey: p.SubmissionKey,
		Message:       p.Message,
		Location:      p.Location,
		Timestamp:     p.Timestamp,
	}
	if rec.SubmissionKey == "" {
		rec.SubmissionKey = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = s.now().UTC().Format(time.RFC3339Nano)
	}
	if err := db.Create(&rec).Error; err != nil {
		return 0, unavailable(err)
	}
	return rec.LocalID, nil
}

// ListAll returns every record, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]PendingAlert, error) {
	return s.list(ctx, false)
}

// ListDeliverable returns the records not marked rejected, oldest first.
func (s *Store) ListDeliverable(ctx context.Context) ([]PendingAlert, error) {
	return s.list(ctx, true)
}

func (s *Store) list(ctx context.Context, deliverableOnly bool) ([]PendingAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if deliverableOnly {
		db = db.Where("rejected_at IS NULL")
	}
	out := []PendingAlert{}
	if err := db.Order("local_id ASC").Find(&out).Error; err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Get returns the record or nil when absent.
func (s *Store) Get(ctx context.Context, localID uint) (*PendingAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	var rec PendingAlert
	if err := db.Where("local_id = ?", localID).Limit(1).Find(&rec).Error; err != nil {
		return nil, unavailable(err)
	}
	if rec.LocalID == 0 {
		return nil, nil
	}
	return &rec, nil
}

// Remove deletes one record. Removing an absent id is a no-op.
func (s *Store) Remove(ctx context.Context, localID uint) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.session(ctx)
	if err != nil {
		return err
	}
	if err := db.Where("local_id = ?", localID).Delete(&PendingAlert{}).Error; err != nil {
		return unavailable(err)
	}
	return nil
}

// MarkRejected keeps the record but excludes it from later drains.
func (s *Store) MarkRejected(ctx context.Context, localID uint, reason string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.session(ctx)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	err = db.Model(&PendingAlert{}).Where("local_id = ?", localID).
		Updates(map[string]any{"rejected_at": now, "reject_reason": reason}).Error
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.session(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(&PendingAlert{}).Count(&n).Error; err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Close releases the file. Later calls fail with ErrStorageUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
