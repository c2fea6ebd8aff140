package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

func createDatabaseInstance(cfg *gorm.Config, driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "pg", "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(sqlite.Open(sqliteDSN(dsn)), cfg)
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		return "file::memory:?cache=shared&" + sqlitePragmas
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

// InitDatabase opens the configured database. SQLite connections are capped at
// one writer so concurrent requests queue instead of failing with SQLITE_BUSY.
func InitDatabase(driver, dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	db, err := createDatabaseInstance(cfg, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName(driver), err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driverName(driver) == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

func driverName(driver string) string {
	switch driver {
	case "mysql":
		return "mysql"
	case "pg", "postgres":
		return "postgres"
	default:
		return "sqlite"
	}
}
