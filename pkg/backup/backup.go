package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/scheduler"
	"SOSBeacon/pkg/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const filePrefix = "sosbeacon_backup_"

type Config struct {
	Driver   string
	Dir      string
	Schedule string
	Keep     int // most recent backups to retain; 0 keeps all
}

// Backuper snapshots the alert database on a cron schedule.
type Backuper struct {
	db     *gorm.DB
	cfg    Config
	remote storage.Store
	now    func() time.Time
}

func New(db *gorm.DB, cfg Config) *Backuper {
	return &Backuper{db: db, cfg: cfg, now: time.Now}
}

// WithRemote copies every snapshot to s after it is written locally.
func (b *Backuper) WithRemote(s storage.Store) *Backuper {
	b.remote = s
	return b
}

// Schedule registers the backup job on cr.
func (b *Backuper) Schedule(cr *scheduler.Cron) error {
	if err := scheduler.Validate(b.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid BACKUP_SCHEDULE %q: %w", b.cfg.Schedule, err)
	}
	_, err := cr.AddWithCtx(b.cfg.Schedule, func(ctx context.Context) {
		path, err := b.Run(ctx)
		if err != nil {
			logger.Warn("Backup failed", zap.Error(err))
			return
		}
		logger.Info("Backup completed", zap.String("path", path))
	})
	return err
}

// Run writes one snapshot and prunes old ones. Only SQLite is supported;
// server databases are expected to use their own tooling.
func (b *Backuper) Run(ctx context.Context) (string, error) {
	switch strings.ToLower(b.cfg.Driver) {
	case "", "sqlite", "sqlite3":
	default:
		return "", fmt.Errorf("backup unsupported for DB_DRIVER %q", b.cfg.Driver)
	}

	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	dst := filepath.Join(b.cfg.Dir, filePrefix+b.now().UTC().Format("20060102_150405")+".db")
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("backup %s already exists", dst)
	}

	// VACUUM INTO produces a consistent copy while the database stays open.
	if err := b.db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return "", fmt.Errorf("sqlite backup failed: %w", err)
	}
	if err := b.prune(); err != nil {
		logger.Warn("backup prune failed", zap.Error(err))
	}
	if b.remote != nil {
		if err := b.upload(ctx, dst); err != nil {
			return dst, fmt.Errorf("backup upload failed: %w", err)
		}
	}
	return dst, nil
}

func (b *Backuper) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	return b.remote.Put(ctx, filepath.Base(path), f, st.Size(), "application/vnd.sqlite3")
}

func (b *Backuper) prune() error {
	if b.cfg.Keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) <= b.cfg.Keep {
		return nil
	}
	// timestamped names sort chronologically
	sort.Strings(names)
	for _, name := range names[:len(names)-b.cfg.Keep] {
		if err := os.Remove(filepath.Join(b.cfg.Dir, name)); err != nil {
			return err
		}
	}
	return nil
}
