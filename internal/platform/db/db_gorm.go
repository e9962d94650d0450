// Package db はデッキ記録を保存するデータベース接続を提供します。
package db

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Driver はサポートするデータベースドライバを表します。
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

const (
	defaultConnectTimeout = 60 * time.Second
	defaultSQLitePath     = "cube_wizard.db"
)

// retryInterval は接続リトライの待機間隔です。
var retryInterval = 3 * time.Second

// ErrUnsupportedDriver は未知のDB_DRIVERが指定された場合に返されます。
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Config はデータベース接続設定を保持します。
type Config struct {
	Driver       Driver
	Path         string // sqlite のファイルパス
	User         string
	Password     string
	Name         string
	Host         string
	Port         string
	SSLMode      string
	InstanceName string // Cloud SQL のインスタンス接続名
	Migrate      bool
}

// LoadConfigFromEnv は環境変数から設定を読み込みます。
func LoadConfigFromEnv() Config {
	driver := Driver(strings.ToLower(os.Getenv("DB_DRIVER")))
	if driver == "" {
		driver = DriverSQLite
	}
	path := os.Getenv("DB_PATH")
	if path == "" {
		path = defaultSQLitePath
	}
	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}
	return Config{
		Driver:       driver,
		Path:         path,
		User:         os.Getenv("DB_USER"),
		Password:     os.Getenv("DB_PASSWORD"),
		Name:         os.Getenv("DB_NAME"),
		Host:         os.Getenv("DB_HOST"),
		Port:         os.Getenv("DB_PORT"),
		SSLMode:      sslMode,
		InstanceName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		Migrate:      os.Getenv("RUN_MIGRATIONS") == "true",
	}
}

// BuildDSN は設定からドライバに応じたDSN文字列を生成します。
// Postgres で InstanceName が設定されている場合は Cloud SQL の Unix ソケットを優先します。
func BuildDSN(cfg Config) string {
	if cfg.Driver == DriverPostgres {
		host := cfg.Host
		if cfg.InstanceName != "" {
			host = "/cloudsql/" + cfg.InstanceName
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=%s",
			host, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		if cfg.InstanceName == "" && cfg.Port != "" {
			dsn += " port=" + cfg.Port
		}
		return dsn
	}
	if cfg.Path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	return "file:" + cfg.Path + "?_busy_timeout=5000&_journal_mode=WAL"
}

// ConnectWithRetry は指定したタイムアウトまでretryInterval間隔で接続を試行します。
func ConnectWithRetry(dsn string, timeout time.Duration, opener func(string) (*gorm.DB, error)) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for attempt := 1; ; attempt++ {
		db, err := opener(dsn)
		if err == nil {
			return db, nil
		}
		lastErr = err
		if time.Now().Add(retryInterval).After(deadline) {
			break
		}
		slog.Warn("database not ready, retrying", "attempt", attempt, "error", err)
		time.Sleep(retryInterval)
	}
	return nil, fmt.Errorf("connect database: gave up after %s: %w", timeout, lastErr)
}

func openerFor(driver Driver) (func(string) (*gorm.DB, error), error) {
	gcfg := &gorm.Config{TranslateError: true}
	switch driver {
	case DriverPostgres:
		return func(dsn string) (*gorm.DB, error) {
			db, err := gorm.Open(postgres.Open(dsn), gcfg)
			if err != nil {
				return nil, err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, err
			}
			if err := sqlDB.Ping(); err != nil {
				return nil, err
			}
			return db, nil
		}, nil
	case DriverSQLite:
		return func(dsn string) (*gorm.DB, error) {
			db, err := gorm.Open(sqlite.Open(dsn), gcfg)
			if err != nil {
				return nil, err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, err
			}
			// sqlite は単一ライターのため接続を1本に絞る
			sqlDB.SetMaxOpenConns(1)
			return db, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// OpenDB はDBに接続し、cfg.Migrate が真なら models をマイグレーションします。
func OpenDB(cfg Config, models ...any) (*gorm.DB, error) {
	opener, err := openerFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := ConnectWithRetry(BuildDSN(cfg), defaultConnectTimeout, opener)
	if err != nil {
		return nil, err
	}
	slog.Info("database connected", "driver", cfg.Driver)

	if cfg.Migrate && len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		slog.Info("database migrated", "models", len(models))
	}
	return db, nil
}
