package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "mount_modeling/docs"
	"mount_modeling/internal/alignment"
	"mount_modeling/internal/config"
	"mount_modeling/internal/handlers"
	"mount_modeling/internal/imaging"
	"mount_modeling/internal/logger"
	"mount_modeling/internal/models"
	"mount_modeling/internal/mount"
	"mount_modeling/internal/mount/simulator"
	"mount_modeling/internal/observability"
	"mount_modeling/internal/repository"
	"mount_modeling/internal/repository/db"
	"mount_modeling/internal/server"
	"mount_modeling/internal/service"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	shutdownTimeout  = 10 * time.Second
	simulatorTick    = 100 * time.Millisecond
	connectionLogTTL = 5 * time.Second
)

// @title                       Mount Modeling API
// @version                     1.0
// @description                 Drives a telescope mount through pointing-model runs.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	configPath := flag.String("config", "", "path to config file (default configs/config.yml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.Log.Level)

	sqlDB, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		log.Fatalw("failed to register metrics", "err", err)
	}

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mountAddr := cfg.Mount.Address
	if cfg.Simulator.Enabled {
		if mountAddr, err = startSimulator(ctx, cfg.Simulator, log); err != nil {
			log.Fatalw("failed to start mount simulator", "err", err)
		}
	}

	repos := repository.NewRepository(sqlDB)
	link := newMountLink(cfg, mountAddr, repos.EventRepo, log, metrics)
	go link.Run(ctx)

	imager, err := newImager(cfg.Imaging, log, metrics)
	if err != nil {
		log.Fatalw("failed to init imaging backend", "err", err)
	}

	services := service.NewService(service.Deps{
		Repos:    repos,
		Mount:    link,
		Imager:   imager,
		Modeling: modelingOptions(cfg),
		Auth:     service.AuthOptions{SigningKey: cfg.Auth.SigningKey, TokenTTL: cfg.Auth.TokenTTL},
		Logger:   log,
		Metrics:  metrics,
	})
	apiHandler := handlers.NewHandler(services, log, metrics.Handler())

	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)
	log.Infow("service_started", "port", cfg.Port, "mount", mountAddr, "imaging", imager.Backend())

	waitForShutdown(cancel, srv, services, log)
}

func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	path := cfg.DB.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		path = "app.db"
	}
	return db.InitDB(path)
}

// startSimulator serves the simulated mount and returns its address.
func startSimulator(ctx context.Context, c config.SimulatorConfig, log *logger.Logger) (string, error) {
	sim := simulator.New(simulator.Config{
		Address:      c.Address,
		Latitude:     c.Latitude,
		Longitude:    c.Longitude,
		Elevation:    c.Elevation,
		SlewDuration: c.SlewDuration,
		Tick:         simulatorTick,
		Logger:       log.Named("simulator"),
	})
	return sim.Start(ctx)
}

func newMountLink(cfg *config.Config, addr string, events repository.EventRepo, log *logger.Logger, metrics *observability.Collector) *mount.Link {
	mlog := log.Named("mount")
	opts := mount.Options{
		Address:           addr,
		ConnectTimeout:    cfg.Mount.ConnectTimeout,
		ReplyTimeout:      cfg.Mount.ReplyTimeout,
		CommandInterval:   cfg.Mount.CommandInterval,
		ReconnectInterval: cfg.Mount.ReconnectInterval,
		MediumInterval:    cfg.Mount.StatusInterval,
		FastInterval:      cfg.Mount.FastInterval,
		AlignmentInterval: cfg.Mount.AlignmentInterval,
		Refraction: mount.RefractionPolicy{
			Auto:            cfg.Refraction.Auto,
			WhenNotTracking: cfg.Refraction.WhenNotTracking,
		},
		Weather: mount.StaticWeather{
			TemperatureC: cfg.Refraction.Temperature,
			PressureHPa:  cfg.Refraction.Pressure,
		},
		Logger:  mlog,
		Metrics: metrics,
		OnConnectionChange: func(connected bool) {
			go logConnection(events, addr, connected, mlog)
		},
	}
	return mount.NewLink(opts, mount.NewStatusStore(mlog, metrics), alignment.NewStore())
}

// logConnection records link state changes in the model log history.
func logConnection(events repository.EventRepo, addr string, connected bool, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), connectionLogTTL)
	defer cancel()
	desc := "Mount disconnected"
	if connected {
		desc = "Mount connected"
	}
	err := events.Append(ctx, models.ModelEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        models.EventConnection,
		Description: desc,
		Metadata:    map[string]any{"address": addr, "connected": connected},
	})
	if err != nil {
		log.Warnw("connection_event_persist_failed", "err", err)
	}
}

func newImager(c config.ImagingConfig, log *logger.Logger, metrics *observability.Collector) (*imaging.Gateway, error) {
	backend, err := imaging.NewBackend(c.Backend, c.URL)
	if err != nil {
		return nil, err
	}
	return imaging.NewGateway(backend, imaging.Options{
		PollInterval:   c.PollInterval,
		CaptureTimeout: c.CaptureTimeout,
		SolveTimeout:   c.SolveTimeout,
		Logger:         log.Named("imaging"),
		Metrics:        metrics,
	}), nil
}

func modelingOptions(cfg *config.Config) service.ModelingOptions {
	return service.ModelingOptions{
		ImageDir:        cfg.Modeling.ImageDir,
		SettleTime:      cfg.Modeling.SettleTime,
		SlewStartDelay:  cfg.Modeling.SlewStartDelay,
		SlewTimeout:     cfg.Modeling.SlewTimeout,
		CommandTimeout:  cfg.Mount.ReplyTimeout * 6,
		KeepImages:      cfg.Modeling.KeepImages,
		ClearModelFirst: cfg.Modeling.ClearModelFirst,
		Simulation:      cfg.Modeling.Simulation,
		PointsFile:      cfg.Modeling.PointsFile,
		Capture: imaging.CaptureRequest{
			Binning:  cfg.Imaging.Binning,
			Exposure: cfg.Imaging.Exposure,
		},
		ScaleHint: cfg.Imaging.ScaleHint,
		Blind:     cfg.Imaging.Blind,
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown blocks until SIGINT/SIGTERM, then cancels an active run,
// stops background goroutines and drains the HTTP server.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Let the run close its model session while the link is still up.
	if err := services.Modeling.Cancel(ctx); err != nil && !errors.Is(err, service.ErrNoRunInProgress) {
		log.Warnw("model_run_cancel_on_shutdown_failed", "err", err)
	}

	cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
