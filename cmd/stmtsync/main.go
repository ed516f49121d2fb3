package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/jask/stmtsync/internal/config"
	"github.com/jask/stmtsync/internal/database"
	"github.com/jask/stmtsync/internal/database/postgres"
	"github.com/jask/stmtsync/internal/database/repository"
	"github.com/jask/stmtsync/internal/service"
)

const usage = `usage: stmtsync <command> [flags]

commands:
  migrate     apply database migrations
  import      import a parsed statement JSON file
  review      list pending reviews
  resolve     merge or dismiss a pending review
  categorize  assign a category to transactions and learn from it
  rules       list learned category rules or suggest one
  seed        create sample manual transactions
  reset       delete one user's data (sqlite only)
  config      write the effective configuration file
  serve       run the HTTP API with /metrics and /health
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", "err", err)
	}
	logger := newLogger(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error(os.Args[1], "err", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "stmtsync"})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warn("unknown log level, using info", "level", level)
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger, cmd string, args []string) error {
	switch cmd {
	case "migrate":
		return migrateCmd(cfg, logger)
	case "config":
		if err := config.Save(cfg); err != nil {
			return err
		}
		logger.Info("config written", "path", config.Path())
		return nil
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	switch cmd {
	case "import":
		return importCmd(ctx, b, cfg, logger, args)
	case "review":
		return reviewCmd(ctx, b, cfg, logger, args)
	case "resolve":
		return resolveCmd(ctx, b, cfg, logger, args)
	case "categorize":
		return categorizeCmd(ctx, b, cfg, logger, args)
	case "rules":
		return rulesCmd(ctx, b, logger, args)
	case "seed":
		return seedCmd(ctx, b, logger, args)
	case "reset":
		return resetCmd(ctx, b, logger, args)
	case "serve":
		return serveCmd(ctx, b, cfg, logger, args)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func migrateCmd(cfg config.Config, logger *log.Logger) error {
	var (
		version uint
		err     error
	)
	switch cfg.Database.Driver {
	case "postgres":
		version, err = postgres.Migrate(cfg.Database.URL)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("mkdir db dir: %w", err)
		}
		version, err = database.RunMigrations(cfg.Database.Path, cfg.Database.Migrations)
	}
	if err != nil {
		return err
	}
	logger.Info("schema up to date", "driver", cfg.Database.Driver, "version", version)
	return nil
}

// ledger is everything the commands need from a store.
type ledger interface {
	service.Store
	service.AccountWriter
}

type backend struct {
	store   ledger
	reviews service.ReviewQueue
	db      *sql.DB // sqlite only
	close   func()
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	if cfg.Database.Driver == "postgres" {
		pg, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return &backend{store: pg, reviews: pg.Reviews(), close: pg.Close}, nil
	}

	if _, err := os.Stat(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("database %s: %w (run `stmtsync migrate` first)", cfg.Database.Path, err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	store := repository.NewStore(db)
	return &backend{store: store, reviews: store.Reviews(), db: db, close: func() { _ = db.Close() }}, nil
}
