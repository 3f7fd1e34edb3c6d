package audit

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"

	"zinga/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// openDB opens the SQLite file at path and applies the connection pragmas.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// Migrate runs all pending audit migrations.
func Migrate(db *sql.DB, log *logger.Logger) error {
	if db == nil {
		return errors.New("migration error: db is nil")
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("migration error setting dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	log *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Debug().Msgf(format, v...)
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Error().Msgf(format, v...)
}
