package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OldStager01/vm-autoscaler/api"
	"github.com/OldStager01/vm-autoscaler/internal/auth"
	"github.com/OldStager01/vm-autoscaler/internal/events"
	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/internal/metrics"
	"github.com/OldStager01/vm-autoscaler/internal/orchestrator"
	"github.com/OldStager01/vm-autoscaler/pkg/config"
	"github.com/OldStager01/vm-autoscaler/pkg/database"
	"github.com/OldStager01/vm-autoscaler/pkg/validation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash for an admin password and exit")
	serveAfter := flag.Bool("serve-after-run", true, "keep the API up after the simulation finishes")
	flag.Parse()

	if *hashPassword != "" {
		return printHash(*hashPassword)
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	var db *database.DB
	if cfg.Database.Enabled || *migrate {
		db, err = database.New(context.Background(), cfg.Database.ToDBConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		logger.Info("Database connection established")

		if err := runMigrations(cfg, db); err != nil {
			return err
		}
		if *migrate {
			return nil
		}
	}

	deps := orchestrator.Deps{Metrics: metrics.Get()}
	if db != nil {
		deps.Store = events.NewDBStore(db.DB)
	}
	orch, err := orchestrator.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(cfg, db, orch)
		g.Go(func() error {
			return server.Run(gctx, cfg.App.ShutdownTimeout)
		})
	}

	if cfg.Prometheus.Enabled {
		g.Go(func() error {
			return deps.Metrics.StartServer(gctx, cfg.Prometheus.Port, cfg.Prometheus.Path)
		})
	}

	g.Go(func() error {
		result, err := orch.Run(gctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("simulation failed: %w", err)
		}
		logger.Infof("Simulation finished at t=%.1f: %d VMs (%d allocated), %d workloads finished",
			result.EndTime, result.Summary.TotalVMs, result.Summary.AllocatedVMs, result.Summary.FinishedWorkloads)

		if server == nil || !*serveAfter {
			stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shut down gracefully")
	return nil
}

func runMigrations(cfg *config.Config, db *database.DB) error {
	timeout := cfg.Database.MigrationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Running database migrations")
	if err := database.NewMigrator(db).Run(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func printHash(password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
