// Package database contains the concrete implementation of the persistence layer using GORM.
// MySQL, PostgreSQL and SQLite are selected by configuration.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"accounts/config"
	"accounts/internal/domain/lifecycle"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

const (
	dbPoolMonitorInterval       = 5 * time.Second
	dbPoolWarnDurationThreshold = 50 * time.Millisecond
)

// Params defines the required parameters
type Params struct {
	fx.In
	fx.Lifecycle

	Config *config.Config
	Logger *slog.Logger
}

// New opens the configured database and registers its lifecycle.
// On start it pings the primary and applies the embedded migrations.
func New(params Params) (*gorm.DB, error) {
	cfg := params.Config.DB

	db, err := Open(cfg, newGormSlogLogger(params.Logger, params.Config))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB")
	}

	monitorCtx, cancelMonitor := context.WithCancel(context.Background())

	// Add lifecycle management
	params.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			ctx, cancel := context.WithTimeout(startCtx, lifecycle.DefaultTimeout)
			defer cancel()

			if err := sqlDB.PingContext(ctx); err != nil {
				return errors.Wrapf(err, "failed to ping %s", cfg.Driver)
			}

			if cfg.Migrate {
				if err := Migrate(ctx, sqlDB, cfg.Driver, params.Logger); err != nil {
					return err
				}
			}

			params.Logger.Info("Database ready",
				slog.String("driver", cfg.Driver),
				slog.String("name", cfg.Name),
				slog.Int("replicas", len(cfg.Replicas)),
			)

			go monitorDBPool(monitorCtx, params.Logger, sqlDB, dbPoolMonitorInterval)

			return nil
		},
		OnStop: func(_ context.Context) error {
			cancelMonitor()

			return sqlDB.Close()
		},
	})

	return db, nil
}

// Open builds a *gorm.DB for cfg without touching lifecycle or migrations.
func Open(cfg config.DBConfig, gormLogger gormlogger.Interface) (*gorm.DB, error) {
	dialector, err := newDialector(cfg.Driver, cfg, replicaTarget{})
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// A single INSERT is already atomic; no implicit per-statement transaction.
		SkipDefaultTransaction: true,
		// Driver-specific constraint errors surface as gorm.ErrDuplicatedKey.
		TranslateError:       true,
		DisableAutomaticPing: true,
		Logger:               gormLogger,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", cfg.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB")
	}
	applyPool(sqlDB, cfg)

	if err := registerReplicas(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// replicaTarget overrides the connection fields of the primary for a replica.
type replicaTarget struct {
	config.ReplicaConfig
	set bool
}

func newDialector(driver string, cfg config.DBConfig, replica replicaTarget) (gorm.Dialector, error) {
	if replica.set {
		if replica.Host != "" {
			cfg.Host = replica.Host
		}
		if replica.Port != 0 {
			cfg.Port = replica.Port
		}
		if replica.User != "" {
			cfg.User = replica.User
		}
		if replica.Password != "" {
			cfg.Password = replica.Password
		}
	}

	switch driver {
	case config.DriverMySQL:
		// The version probe would connect eagerly; OnStart pings instead.
		return mysql.New(mysql.Config{DSN: mysqlDSN(cfg), SkipInitializeWithVersion: true}), nil
	case config.DriverPostgres:
		return postgres.Open(postgresDSN(cfg)), nil
	case config.DriverSQLite:
		return sqlite.Open(sqliteDSN(cfg)), nil
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}
}

func mysqlDSN(cfg config.DBConfig) string {
	mc := mysqldriver.NewConfig()
	mc.Net = "tcp"
	mc.Addr = cfg.Addr()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Name
	mc.ParseTime = true
	if len(cfg.Params) > 0 {
		mc.Params = maps.Clone(cfg.Params)
	}

	return mc.FormatDSN()
}

func postgresDSN(cfg config.DBConfig) string {
	parts := []string{
		"host=" + quoteDSNValue(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"user=" + quoteDSNValue(cfg.User),
		"password=" + quoteDSNValue(cfg.Password),
		"dbname=" + quoteDSNValue(cfg.Name),
	}
	if cfg.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteDSNValue(cfg.SSLMode))
	}
	for _, k := range slices.Sorted(maps.Keys(cfg.Params)) {
		parts = append(parts, k+"="+quoteDSNValue(cfg.Params[k]))
	}

	return strings.Join(parts, " ")
}

// quoteDSNValue quotes libpq keyword values containing spaces or quotes.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)

	return "'" + v + "'"
}

func sqliteDSN(cfg config.DBConfig) string {
	if len(cfg.Params) == 0 {
		return cfg.Name
	}

	values := url.Values{}
	for k, v := range cfg.Params {
		values.Set(k, v)
	}
	sep := "?"
	if strings.Contains(cfg.Name, "?") {
		sep = "&"
	}

	return cfg.Name + sep + values.Encode()
}

func applyPool(sqlDB *sql.DB, cfg config.DBConfig) {
	pool := cfg.Pool
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	if cfg.Driver == config.DriverSQLite {
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
		pool.ConnMaxLifetime = 0
		pool.ConnMaxIdleTime = 0
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
}

func registerReplicas(db *gorm.DB, cfg config.DBConfig) error {
	if len(cfg.Replicas) == 0 || cfg.Driver == config.DriverSQLite {
		return nil
	}

	replicas := make([]gorm.Dialector, 0, len(cfg.Replicas))
	for _, r := range cfg.Replicas {
		dialector, err := newDialector(cfg.Driver, cfg, replicaTarget{ReplicaConfig: r, set: true})
		if err != nil {
			return err
		}
		replicas = append(replicas, dialector)
	}

	resolver := dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   dbresolver.RandomPolicy{},
	}).
		SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime).
		SetConnMaxIdleTime(cfg.Pool.ConnMaxIdleTime)
	if cfg.Pool.MaxOpenConns > 0 {
		resolver = resolver.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		resolver = resolver.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}

	if err := db.Use(resolver); err != nil {
		return errors.Wrap(err, "failed to register read replicas")
	}

	return nil
}

func monitorDBPool(ctx context.Context, logger *slog.Logger, sqlDB *sql.DB, interval time.Duration) {
	if logger == nil || sqlDB == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := sqlDB.Stats()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := sqlDB.Stats()
			waitDelta := cur.WaitCount - prev.WaitCount
			waitDurationDelta := cur.WaitDuration - prev.WaitDuration

			if waitDelta > 0 {
				attrs := []slog.Attr{
					slog.Int64("waitCountDelta", waitDelta),
					slog.Duration("waitDurationDelta", waitDurationDelta),
					slog.Duration("avgWait", waitDurationDelta/time.Duration(waitDelta)),
					slog.Int("maxOpenConns", cur.MaxOpenConnections),
					slog.Int("openConns", cur.OpenConnections),
					slog.Int("inUseConns", cur.InUse),
				}
				if waitDurationDelta >= dbPoolWarnDurationThreshold {
					logger.LogAttrs(ctx, slog.LevelWarn, "DB pool wait detected", attrs...)
				} else {
					logger.LogAttrs(ctx, slog.LevelDebug, "DB pool wait observed", attrs...)
				}
			}

			prev = cur
		}
	}
}
