package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gepvi/gepvi-users/internal/config"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// gooseLogger routes goose output through the application logger
type gooseLogger struct {
	log *logger.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Fatalf(format, v...)
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Infof(format, v...)
}

func main() {
	command := flag.String("command", "up", "Migration command: up, down, status or version")
	flag.Parse()

	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host, "schema", cfg.Postgres.Schema)

	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// search_path points at the schema, so it has to exist before goose
	// creates its version table
	if cfg.Postgres.Schema != "" {
		stmt := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(cfg.Postgres.Schema))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Fatalw("Failed to create schema", "schema", cfg.Postgres.Schema, "error", err)
		}
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{log: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatalw("Failed to set goose dialect", "error", err)
	}

	switch *command {
	case "up":
		err = goose.UpContext(ctx, db.DB, ".")
	case "down":
		err = goose.DownContext(ctx, db.DB, ".")
	case "status":
		err = goose.StatusContext(ctx, db.DB, ".")
	case "version":
		err = goose.VersionContext(ctx, db.DB, ".")
	default:
		logger.Fatalf("Unknown migration command: %s", *command)
	}
	if err != nil {
		logger.Fatalw("Migration failed", "command", *command, "error", err)
	}

	logger.Infow("Migration completed successfully", "command", *command)
}
