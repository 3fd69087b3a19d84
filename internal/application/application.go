package application

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eugenenazirov/drive-consolidator/internal/api"
	"github.com/eugenenazirov/drive-consolidator/internal/config"
	"github.com/eugenenazirov/drive-consolidator/internal/consolidator"
	"github.com/eugenenazirov/drive-consolidator/internal/database"
	"github.com/eugenenazirov/drive-consolidator/internal/metrics"
	"github.com/eugenenazirov/drive-consolidator/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage      storage.Storage
	consolidator consolidator.Consolidator
	recorder     *metrics.Recorder
	db           *gorm.DB
	handler      *api.Handler
	router       http.Handler
	logger       *zap.Logger
	server       *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store, db, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := seedFleets(store, cfg.Fleets); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to seed fleets: %w", err)
	}

	var recorder *metrics.Recorder
	if cfg.MetricsEnabled {
		recorder, err = metrics.NewRecorder()
		if err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to create metrics recorder: %w", err)
		}
	}

	calc := consolidator.New()
	handler := api.NewHandler(calc, store,
		api.WithLogger(logger),
		api.WithRecorder(recorder),
		api.WithBounds(cfg.MaxDrives, cfg.MaxCapacity),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	var metricsHandler http.Handler
	if recorder != nil {
		metricsHandler = recorder.Handler()
	}

	return &App{
		storage:      store,
		consolidator: calc,
		recorder:     recorder,
		db:           db,
		handler:      handler,
		router:       apiRouter,
		logger:       logger,
		server:       NewServer(cfg, BuildRootHandler(apiRouter, cfg.MetricsPath, metricsHandler)),
	}, nil
}

func openStorage(cfg config.Config, logger *zap.Logger) (storage.Storage, *gorm.DB, error) {
	if !cfg.Database.Enabled() {
		logger.Info("using in-memory fleet storage")
		return storage.NewMemoryStorage(cfg.MaxDrives), nil, nil
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := storage.NewSQLStorage(db, cfg.MaxDrives)
	if cfg.Database.AutoMigrate {
		if err := store.AutoMigrate(); err != nil {
			_ = database.Close(db)
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	logger.Info("using database fleet storage", zap.String("type", cfg.Database.Type))
	return store, db, nil
}

func seedFleets(store storage.Storage, fleets map[string]config.FleetConfig) error {
	for _, name := range slices.Sorted(maps.Keys(fleets)) {
		fc := fleets[name]
		if err := store.SaveFleet(storage.Fleet{Name: name, Used: fc.Used, Total: fc.Total}); err != nil {
			return fmt.Errorf("fleet %q: %w", name, err)
		}
	}
	return nil
}

// BuildRootHandler mounts the API router and, when metricsHandler is non-nil,
// the metrics endpoint.
func BuildRootHandler(apiHandler http.Handler, metricsPath string, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	if metricsHandler != nil && metricsPath != "" {
		mux.Handle("GET "+metricsPath, metricsHandler)
	}
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Close releases the database connection, if any.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	err := database.Close(a.db)
	a.db = nil
	return err
}
