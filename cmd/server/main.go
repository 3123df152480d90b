package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/xy2yp/stargazer/internal/ai"
	"github.com/xy2yp/stargazer/internal/api"
	"github.com/xy2yp/stargazer/internal/config"
	"github.com/xy2yp/stargazer/internal/scheduler"
	"github.com/xy2yp/stargazer/internal/secrets"
	"github.com/xy2yp/stargazer/internal/storage"
	syncsvc "github.com/xy2yp/stargazer/internal/sync"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	dataDir := flag.String("data-dir", "./data", "path to data directory")
	flag.Parse()

	// Load configuration (auto-creates default if missing).
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure data directory exists.
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Open database with WAL mode and pragmas.
	db, err := storage.OpenDatabase(filepath.Join(*dataDir, "app.db"))
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run schema migrations.
	if err := storage.RunMigrations(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	store := storage.NewStore(db)

	// The secrets box encrypts tokens and push configs at rest.
	box, err := secrets.NewBox(cfg.Security.SecretKey)
	if err != nil {
		slog.Error("failed to initialize secrets", "error", err)
		os.Exit(1)
	}

	syncService := syncsvc.NewService(store)
	pipeline := ai.NewPipeline(store, box, cfg.ProxyURL())
	sched := scheduler.New(store, box, syncService, pipeline, cfg.ProxyURL(),
		time.Duration(cfg.Scheduler.InitialDelaySeconds)*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sched.Run(ctx)

	router := api.NewRouter(store, box, sched, syncService, pipeline, cfg.ProxyURL())

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
