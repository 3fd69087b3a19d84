// Package database opens gorm connections for the supported SQL backends.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Config describes how to reach the database.
type Config struct {
	Type            string        `yaml:"type"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LogLevel        string        `yaml:"log_level"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// Enabled reports whether a database backend is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Type) != ""
}

// Open connects to the configured database and verifies the connection.
func Open(cfg Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		db, err = openSQLite(cfg.DSN, gormConfig)
	case "mysql":
		db, err = gorm.Open(mysql.Open(withMySQLParams(cfg.DSN)), gormConfig)
	case "postgres", "postgresql":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	// An in-memory sqlite database exists only on the connection that created
	// it, so its pool is pinned by openSQLite and left alone here.
	if !isSQLiteMemory(cfg) {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Type, err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// openSQLite uses the pure Go modernc.org/sqlite driver, so no cgo is needed.
// An in-memory database lives as long as its single connection.
func openSQLite(dsn string, gormConfig *gorm.Config) (*gorm.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	if !memoryDSN(dsn) {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, gormConfig)
	if err != nil {
		return nil, err
	}
	if memoryDSN(dsn) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	}
	return db, nil
}

func isSQLiteMemory(cfg Config) bool {
	return strings.EqualFold(cfg.Type, "sqlite") && memoryDSN(cfg.DSN)
}

func memoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func withMySQLParams(dsn string) string {
	params := []struct{ key, value string }{
		{"charset", "utf8mb4"},
		{"parseTime", "True"},
		{"loc", "Local"},
	}

	separator := "?"
	if strings.HasSuffix(dsn, "?") {
		separator = ""
	} else if strings.Contains(dsn, "?") {
		separator = "&"
	}

	for _, p := range params {
		if !strings.Contains(dsn, p.key+"=") {
			dsn += separator + p.key + "=" + p.value
			separator = "&"
		}
	}
	return dsn
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
