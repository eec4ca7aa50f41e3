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
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/scanarr/internal/api"
	"github.com/sydlexius/scanarr/internal/backup"
	"github.com/sydlexius/scanarr/internal/config"
	"github.com/sydlexius/scanarr/internal/database"
	"github.com/sydlexius/scanarr/internal/encryption"
	"github.com/sydlexius/scanarr/internal/event"
	"github.com/sydlexius/scanarr/internal/logging"
	"github.com/sydlexius/scanarr/internal/maintenance"
	"github.com/sydlexius/scanarr/internal/media"
	"github.com/sydlexius/scanarr/internal/notify"
	"github.com/sydlexius/scanarr/internal/scan"
	"github.com/sydlexius/scanarr/internal/scanner"
	"github.com/sydlexius/scanarr/internal/settings"
	"github.com/sydlexius/scanarr/internal/stats"
	"github.com/sydlexius/scanarr/internal/store"
	"github.com/sydlexius/scanarr/internal/version"
	"github.com/sydlexius/scanarr/internal/watcher"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scanarr",
		Short:        "Audit a media library for files that play badly",
		Version:      version.Version + " (" + version.Commit + ")",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path(), "Config file (YAML)")
	cmd.AddCommand(
		newServeCmd(),
		newScanCmd(),
		newPurgeCmd(),
		newResetCredentialsCmd(),
	)
	return cmd
}

// app holds the pieces every command needs: config, logging, the migrated
// database and the settings service.
type app struct {
	cfg        *config.Config
	logManager *logging.Manager
	logger     *slog.Logger
	db         *sql.DB
	settings   *settings.Service
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logManager, logger := logging.NewManager(logging.FromConfig(cfg.Logging))
	slog.SetDefault(logger)

	db, err := database.OpenMigrated(cfg.Database.Path)
	if err != nil {
		logManager.Close() //nolint:errcheck
		return nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Debug("database ready", slog.String("path", cfg.Database.Path))

	key, err := encryption.ResolveKey(cfg.Encryption.Key, filepath.Dir(cfg.Database.Path), logger)
	if err != nil {
		db.Close()         //nolint:errcheck
		logManager.Close() //nolint:errcheck
		return nil, fmt.Errorf("resolving encryption key: %w", err)
	}
	enc, _, err := encryption.NewEncryptor(key)
	if err != nil {
		db.Close()         //nolint:errcheck
		logManager.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	return &app{
		cfg:        cfg,
		logManager: logManager,
		logger:     logger,
		db:         db,
		settings:   settings.NewService(db, enc),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("closing database", "error", err)
	}
	a.logManager.Close() //nolint:errcheck
}

func (a *app) newCoordinator(st scan.Store) *scanner.Coordinator {
	sc := a.cfg.Scanner
	source := media.NewSource(
		media.NewWalkLister(sc.Extensions),
		media.NewFFProbe(sc.FFProbePath, sc.ProbeTimeout),
	)
	return scanner.NewCoordinator(source, st, scanner.Options{
		MaxSkipRatio:  sc.MaxSkipRatio,
		MinSkipSample: sc.MinSkipSample,
	}, a.logger)
}

func (a *app) newDispatcher(st scan.Store) *notify.Dispatcher {
	return notify.NewDispatcher(st, notify.Options{
		SendTimeout:    a.cfg.Notify.SendTimeout,
		MaxAttempts:    a.cfg.Notify.MaxAttempts,
		RetryBaseDelay: a.cfg.Notify.RetryBaseDelay,
	}, a.logger)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with scheduled scans, retention and the folder watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	st := store.NewSQLite(a.db)
	coordinator := a.newCoordinator(st)

	// Deferred in this order so the bus drains before deliveries are cut off.
	dispatcher := a.newDispatcher(st)
	defer dispatcher.Close()

	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	defer eventBus.Stop()

	eventBus.Subscribe(event.ScanFinished, dispatcher.HandleEvent)
	eventBus.Subscribe(event.ScansPurged, func(e event.Event) {
		logger.Info("scan history purged", "purged", e.Data[event.KeyPurged], "cutoff", e.Data[event.KeyCutoff])
	})
	coordinator.SetEventBus(eventBus)

	maintenanceService := maintenance.NewService(st, a.db, cfg.Database.Path, cfg.Retention.Days, logger)
	maintenanceService.SetEventBus(eventBus)
	var snapshots *backup.Service
	if cfg.Backup.Enabled {
		snapshots = backup.NewService(a.db, cfg.BackupDir(), cfg.Backup.Keep, logger)
		maintenanceService.SetSnapshotter(snapshots)
	}

	scheduler := scanner.NewScheduler(coordinator, a.settings, logger)

	logger.Info("starting scanarr",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	router := api.NewRouter(ctx, api.RouterDeps{
		Coordinator: coordinator,
		Scheduler:   scheduler,
		Store:       st,
		Stats:       stats.NewAggregator(st, logger),
		Settings:    a.settings,
		Dispatcher:  dispatcher,
		Maintenance: maintenanceService,
		Backup:      snapshots,
		Logger:      logger,
		BasePath:    cfg.Server.BasePath,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go scheduler.Start(ctx)

	if cfg.Retention.Enabled {
		go maintenanceService.StartScheduler(ctx, time.Duration(cfg.Retention.IntervalHours)*time.Hour)
	}

	if cfg.Scanner.Watch {
		roots := watcher.RootsFunc(func(ctx context.Context) ([]string, error) {
			s, err := a.settings.Get(ctx)
			return s.ScanFolders, err
		})
		probeCache := watcher.NewProbeCache()
		if folders, err := roots.Roots(ctx); err != nil {
			logger.Error("listing scan folders for probe", "error", err)
		} else {
			probeCache.ProbeAll(ctx, folders, logger)
		}

		scanFn := func(ctx context.Context) error {
			s, err := a.settings.Get(ctx)
			if err != nil {
				return err
			}
			_, err = coordinator.Trigger(ctx, s)
			if errors.Is(err, scanner.ErrScanInProgress) || errors.Is(err, scanner.ErrNoRoots) {
				logger.Info("watcher scan skipped", "reason", err)
				return nil
			}
			return err
		}
		matcher := media.NewWalkLister(cfg.Scanner.Extensions)
		watcherService := watcher.NewService(scanFn, roots, matcher, eventBus, logger, probeCache)
		go watcherService.Start(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	cancelActive(shutdownCtx, coordinator, logger)
	return err
}

// cancelActive cancels running scans and waits for them to be stored.
func cancelActive(ctx context.Context, c *scanner.Coordinator, logger *slog.Logger) {
	active := c.Active()
	if len(active) == 0 {
		return
	}
	for _, s := range active {
		c.Cancel(s.ID)
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for len(c.Active()) > 0 {
		select {
		case <-ctx.Done():
			logger.Warn("scans still running at shutdown", "count", len(c.Active()))
			return
		case <-ticker.C:
		}
	}
}
