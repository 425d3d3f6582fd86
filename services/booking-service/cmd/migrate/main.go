package main

import (
	"database/sql"
	"errors"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/md-rashed-zaman/apptdesk/libs/config"
	"github.com/md-rashed-zaman/apptdesk/libs/runtime"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/migrations"
)

// Usage: migrate [up | down | force <version>]. Defaults to up.
func main() {
	_ = config.LoadDotEnv()
	logger := runtime.NewLogger("booking-migrate")

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	conn, err := sql.Open("pgx", dbURL)
	if err != nil {
		logger.Error("open db", "err", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Ping(); err != nil {
		logger.Error("ping db", "err", err)
		os.Exit(1)
	}

	dbDriver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		logger.Error("db driver", "err", err)
		os.Exit(1)
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("source driver", "err", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Error("create migrator", "err", err)
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "force":
		if len(os.Args) < 3 {
			logger.Error("force requires a version")
			os.Exit(2)
		}
		version, convErr := strconv.Atoi(os.Args[2])
		if convErr != nil {
			logger.Error("invalid version", "value", os.Args[2])
			os.Exit(2)
		}
		err = m.Force(version)
	default:
		logger.Error("unknown command", "cmd", cmd)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("migration failed", "cmd", cmd, "err", err)
		os.Exit(1)
	}
	logger.Info("migrations complete", "cmd", cmd)
}
