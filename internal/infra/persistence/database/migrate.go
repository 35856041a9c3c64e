package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"accounts/config"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

var gooseDialects = map[string]string{
	config.DriverMySQL:    "mysql",
	config.DriverPostgres: "postgres",
	config.DriverSQLite:   "sqlite3",
}

// Migrate applies the embedded migrations for driver to db.
func Migrate(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) error {
	dialect, ok := gooseDialects[driver]
	if !ok {
		return errors.Errorf("no migrations for driver %q", driver)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(&gooseSlogLogger{logger: logger})
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrapf(err, "goose dialect %s", dialect)
	}

	if err := gooseUpContext(ctx, db, path.Join("migrations", driver)); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	return nil
}

type gooseSlogLogger struct {
	logger *slog.Logger
}

func (l *gooseSlogLogger) Printf(format string, v ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Info("goose", slog.String("message", strings.TrimSpace(fmt.Sprintf(format, v...))))
}

// Fatalf logs only. UpContext still returns the failure to the caller.
func (l *gooseSlogLogger) Fatalf(format string, v ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Error("goose", slog.String("message", strings.TrimSpace(fmt.Sprintf(format, v...))))
}
