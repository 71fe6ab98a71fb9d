package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	flag.Parse()
	if flag.NArg() < 1 {
		logger.Error("usage: migrate <up|down|version>")
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://migrations"
	}

	m, err := migrate.New(migrationsPath, postgresURL)
	if err != nil {
		logger.Error("failed to create migrate instance", "error", err)
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	switch command := flag.Arg(0); command {
	case "up":
		switch err := m.Up(); {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Info("no pending migrations")
		case err != nil:
			logger.Error("migration up failed", "error", err)
			os.Exit(1)
		default:
			logger.Info("migrations applied")
		}

	case "down":
		switch err := m.Steps(-1); {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Info("no migrations to roll back")
		case err != nil:
			logger.Error("migration down failed", "error", err)
			os.Exit(1)
		default:
			logger.Info("migration rolled back")
		}

	case "version":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			logger.Info("no migrations applied yet")
		case err != nil:
			logger.Error("failed to get version", "error", err)
			os.Exit(1)
		default:
			logger.Info("current migration version", "version", version, "dirty", dirty)
		}

	default:
		logger.Error("unknown command", "command", command)
		os.Exit(1)
	}
}
