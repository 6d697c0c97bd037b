// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	_ "labware-service/docs"
	"labware-service/internal/config"
	"labware-service/internal/database"
	"labware-service/internal/driver"
	"labware-service/internal/drivers"
	"labware-service/internal/handler"
	"labware-service/internal/metrics"
	"labware-service/internal/publisher"
	"labware-service/internal/repository"
	"labware-service/internal/routes"
	"labware-service/internal/service"
	"labware-service/internal/task"
	"labware-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	// Journal
	journal  repository.JournalRepository
	recorder *repository.Recorder

	// Outputs
	metrics   *metrics.Metrics
	publisher *publisher.Publisher
	eventBus  *handler.EventBus
	wsHandler *handler.WebSocketHandler

	// Services
	deviceService    *service.DeviceService
	taskService      *service.TaskService
	discoveryService *service.DiscoveryService

	driverRegistry *driver.Registry

	ctx    context.Context
	cancel context.CancelFunc
}

// @title Labware Service API
// @version 1.0.0
// @description Command and control service for serial, socket, HTTP and USB laboratory instruments

// @contact.name Labware Service API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /api/v1
func main() {
	configPath := pflag.StringP("config", "c", "", "path to the configuration file")
	pflag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "labware-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", app.initializeDatabase},
		{"journal", app.initializeJournal},
		{"outputs", app.initializeOutputs},
		{"driver registry", app.initializeDriverRegistry},
		{"services", app.initializeServices},
		{"server", app.initializeServer},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			app.shutdown()
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}
	return app, nil
}

// initializeDatabase connects to Postgres and runs migrations when the
// database is enabled
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, journal kept in memory")
		return nil
	}

	db, err := database.Connect(app.ctx, app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeJournal picks the journal store and starts the recorder
func (app *Application) initializeJournal() error {
	if app.database != nil {
		app.journal = repository.NewJournalRepository(app.database, app.logger)
	} else {
		app.journal = repository.NewMemoryJournal(app.config.Journal.Capacity)
	}
	app.recorder = repository.NewRecorder(app.journal, app.logger)
	return nil
}

// initializeOutputs sets up metrics, the NATS publisher and the event bus
func (app *Application) initializeOutputs() error {
	if app.config.Metrics.Enabled {
		app.metrics = metrics.New(app.config.Metrics.Namespace)
	}

	if app.config.NATS.Enabled {
		p, err := publisher.Connect(app.config.NATS, app.logger)
		if err != nil {
			return err
		}
		app.publisher = p
	}

	app.eventBus = handler.NewEventBus(app.logger)
	return nil
}

// initializeDriverRegistry sets up device driver registry
func (app *Application) initializeDriverRegistry() error {
	app.driverRegistry = driver.NewRegistry(app.logger)
	drivers.RegisterDefaultDrivers(app.driverRegistry, app.logger)

	app.logger.Info("Driver registry initialized successfully",
		zap.Int("registered_drivers", len(app.driverRegistry.ListDrivers())),
	)
	return nil
}

// initializeServices creates service instances and loads the configured
// devices
func (app *Application) initializeServices() error {
	observers := []driver.Observer{app.recorder}
	var sinks []task.Sink
	var connections service.ConnectionRecorder
	if app.metrics != nil {
		observers = append(observers, app.metrics)
		sinks = append(sinks, app.metrics)
		connections = app.metrics
	}
	if app.publisher != nil {
		sinks = append(sinks, app.publisher)
	}

	env := driver.Environment{
		Observers: observers,
		TaskSink:  service.NewResultFanout(app.eventBus, sinks...),
		Logger:    app.logger,
	}

	app.deviceService = service.NewDeviceService(
		app.driverRegistry,
		env,
		app.journal,
		app.eventBus,
		connections,
		app.logger,
	)
	app.taskService = service.NewTaskService(app.deviceService, app.eventBus, app.logger)
	app.discoveryService = service.NewDiscoveryService(app.driverRegistry, app.config.Discovery, app.logger)

	if app.metrics != nil {
		if err := app.metrics.WatchConnections(app.config.Metrics.Namespace, app.deviceService.Stats); err != nil {
			return fmt.Errorf("failed to register connection metrics: %w", err)
		}
	}

	// a device that fails to load or connect is reported, not fatal
	if err := app.deviceService.LoadDevices(app.ctx, app.config.Devices); err != nil {
		app.logger.Warn("Some devices failed to load", zap.Error(err))
	}

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	app.wsHandler = handler.NewWebSocketHandler(
		app.deviceService,
		app.eventBus,
		app.config.Security.AllowedOrigins,
		app.logger,
	)

	var db handler.HealthChecker
	if app.database != nil {
		db = app.database
	}

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		db,
		app.metrics,
		app.deviceService,
		app.taskService,
		app.discoveryService,
		app.wsHandler,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
	return nil
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices() {
	go app.eventBus.Start(app.ctx)
	go app.wsHandler.Start(app.ctx)

	if app.database != nil {
		go app.startJournalCleanup()
	}

	app.logger.Info("Background services started")
}

// startJournalCleanup removes journal entries older than 30 days
func (app *Application) startJournalCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	app.logger.Info("Journal cleanup started")

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(app.ctx, 10*time.Minute)
		deleted, err := app.journal.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -30))
		cancel()
		if err != nil {
			app.logger.Error("Failed to cleanup old journal entries", zap.Error(err))
		} else if deleted > 0 {
			app.logger.Info("Cleaned up old journal entries", zap.Int64("deleted", deleted))
		}
	}
}

// Start serves HTTP until a shutdown signal arrives
func (app *Application) Start() error {
	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	app.startBackgroundServices()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		app.shutdown()
		return nil
	case err := <-serverErr:
		app.shutdown()
		return err
	}
}

// shutdown stops the server, then devices, then the outputs they feed
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "labware-service")
	serviceLogger.LogServiceStop("shutdown")

	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		if err := app.server.Shutdown(ctx); err != nil {
			app.logger.Error("HTTP server shutdown error", zap.Error(err))
		} else {
			app.logger.Info("HTTP server stopped")
		}
		cancel()
	}

	if app.deviceService != nil {
		if err := app.deviceService.Close(); err != nil {
			app.logger.Error("Device shutdown error", zap.Error(err))
		}
	}

	app.cancel()

	if app.recorder != nil && !app.recorder.Close(5*time.Second) {
		app.logger.Warn("Journal recorder did not flush in time")
	}

	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.Error("NATS drain error", zap.Error(err))
		}
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")
	_ = app.logger.Sync()
}
