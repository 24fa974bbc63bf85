package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/CTAG07/viewkit/pkg/bootstrap"
	vconfig "github.com/CTAG07/viewkit/pkg/config"
	"github.com/CTAG07/viewkit/pkg/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			break
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("viewkit has shut down.")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// run hosts both servers and returns whenever they are shut down or
// restarted.
func run(actionChan chan string) (string, error) {
	config, err := LoadConfig("./config.json")
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(config.LogLevel)}))
	logger.Info("Starting server cycle...")

	viewCfg, err := vconfig.Load(config.ViewConfig)
	if err != nil {
		return "", fmt.Errorf("failed to load view configuration: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(config.DatabasePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := initDB(config.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}

	if err = setupAuthSchema(db); err != nil {
		logger.Error("Failed to setup auth schema", "error", err)
	}
	if err = setupStatsSchema(db); err != nil {
		logger.Error("Failed to setup stats schema", "error", err)
	}

	var (
		st    *store.Store
		views *bootstrap.Factory
	)
	if config.UseStore {
		st, views, err = storeBackedViews(context.Background(), config, viewCfg, db, logger)
	} else {
		views, err = bootstrap.New(viewCfg, logger)
	}
	if err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to build view factory: %w", err)
	}

	server := NewServer(config, logger, db, views, st, actionChan)
	viewHttpServer := &http.Server{Addr: config.ServerAddr, Handler: server.viewMux}
	apiHttpServer := &http.Server{Addr: config.ApiAddr, Handler: server.apiMux}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	go func() {
		logger.Info("Starting view server", "address", viewHttpServer.Addr)
		if err := viewHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("View server failed", "error", err)
		}
	}()

	action := <-actionChan

	logger.Info("Stopping servers for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	if err = viewHttpServer.Shutdown(ctx); err != nil {
		logger.Error("View server shutdown failed", "error", err)
	}
	logger.Info("HTTP servers stopped.")

	if st != nil {
		st.Close()
	}
	logger.Info("Closing database connection.")
	if err = db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	return action, nil
}

// storeBackedViews serves views out of SQLite, seeding the store from
// ImportDir first when it is set. Imported views land under the first
// configured view path so the finder resolves them unchanged.
func storeBackedViews(ctx context.Context, config *Config, viewCfg *vconfig.Config, db *sql.DB, logger *slog.Logger) (*store.Store, *bootstrap.Factory, error) {
	if err := store.SetupSchema(db); err != nil {
		return nil, nil, err
	}
	st, err := store.New(db, logger)
	if err != nil {
		return nil, nil, err
	}

	views, err := bootstrap.New(viewCfg, logger, bootstrap.WithStore(st))
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	if config.ImportDir != "" {
		var exts []string
		for _, b := range views.Extensions() {
			exts = append(exts, b.Extension)
		}
		n, err := st.Import(ctx, config.ImportDir, viewCfg.Paths[0], exts...)
		if err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("failed to import views: %w", err)
		}
		logger.Info("Seeded view store", "dir", config.ImportDir, "views", n)
	}
	return st, views, nil
}
