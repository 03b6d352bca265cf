package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lxmchat/internal/bus"
	"lxmchat/internal/config"
	"lxmchat/internal/constants"
	"lxmchat/internal/database"
	"lxmchat/internal/media"
	"lxmchat/internal/models"
	"lxmchat/internal/retry"
	"lxmchat/internal/service"
	"lxmchat/internal/tracing"
	"lxmchat/internal/transport"
	"lxmchat/pkg/stego"

	"github.com/sirupsen/logrus"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "config.json", "path to the configuration file")
		verbose     = flag.Bool("verbose", false, "enable verbose logging with full identifiers")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lxmchat %s\n", version)
		return
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *verbose {
		ctx = context.WithValue(ctx, service.VerboseContextKey, true)
	}

	if err := run(ctx, *configPath, *verbose, logger); err != nil {
		logger.WithError(err).Fatal("lxmchat exited with error")
	}
}

func run(ctx context.Context, configPath string, verbose bool, logger *logrus.Logger) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.WithFields(logrus.Fields{
		"version": version,
		"rooms":   len(cfg.Rooms),
	}).Info("Starting lxmchat")

	tracingManager := tracing.NewTracingManager(tracingConfigFrom(cfg.Tracing), logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize tracing, continuing without it")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracingManager.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to shut down tracing")
			}
		}()
	}

	if err := os.MkdirAll(cfg.Media.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create media directory: %w", err)
	}

	// The store must come up before anything else; give a slow filesystem a
	// few chances.
	var db *database.Database
	dbBackoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: constants.DefaultDatabaseRetryBackoffMs * time.Millisecond,
		MaxDelay:     constants.DefaultDatabaseMaxBackoffMs * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	if err := dbBackoff.Retry(ctx, func() error {
		var openErr error
		db, openErr = database.New(cfg.Database.Path)
		return openErr
	}); err != nil {
		return fmt.Errorf("failed to open message store: %w", err)
	}
	defer db.Close()

	bindings, err := service.NewBindingManager(cfg.Rooms)
	if err != nil {
		return fmt.Errorf("invalid room configuration: %w", err)
	}

	pipeline, err := stego.NewSecretboxPipeline(cfg.RoomSecret)
	if err != nil {
		return fmt.Errorf("invalid room secret: %w", err)
	}

	containers := bus.NewContainerBus(logger)
	acks := bus.NewAckBus(logger)
	rtc := bus.NewRTCBus(logger)
	lifecycle := transport.NewLifecycleMonitor()

	registry := transport.NewRegistry(
		cfg.Transport,
		cfg.RelayURL,
		cfg.AuthToken,
		&transport.WebsocketDialer{},
		containers,
		acks,
		rtc,
		lifecycle,
		logger,
	)
	defer registry.Close()

	mediaValidator := media.NewValidator(cfg.Media.MaxSizeMB)
	outboxOpts := service.OutboxOptions{
		MaxAttempts: cfg.Outbox.MaxAttempts,
		BackoffBase: time.Duration(cfg.Outbox.BackoffBaseMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Outbox.BackoffMaxMs) * time.Millisecond,
		BatchSize:   cfg.Outbox.BatchSize,
	}

	controllers := make([]*service.RoomController, 0, len(cfg.Rooms))
	for _, room := range cfg.Rooms {
		binding, _ := bindings.BindingFor(room.RoomID)
		session := registry.Ensure(room.RoomID, cfg.UserID)

		c := service.NewRoomController(
			room.RoomID,
			cfg.UserID,
			room.PeerID,
			service.RoomContext{RoomID: room.RoomID, Binding: binding},
			db,
			session,
			pipeline,
			mediaValidator,
			cfg.Media.Dir,
			outboxOpts,
			containers,
			acks,
			service.NopObserver{},
			logger,
		)
		controllers = append(controllers, c)
		defer c.Close()
	}

	// Foreground transitions sweep the outbox immediately, ahead of the
	// monitor ticker.
	cancelForeground := lifecycle.OnChange(func(s transport.LifecycleState) {
		if s != transport.LifecycleActive {
			return
		}
		for _, c := range controllers {
			if err := c.RetryPending(ctx); err != nil {
				logger.WithError(err).Warn("Foreground retry sweep failed")
			}
		}
	})
	defer cancelForeground()

	monitor := service.NewOutboxMonitor(
		controllers,
		db,
		constants.DefaultOutboxCheckIntervalSec*time.Second,
		constants.DefaultOutboxStaleThresholdSec*time.Second,
		logger,
	)
	monitor.Start(ctx)
	defer monitor.Stop()

	service.StartCleanupScheduler(ctx, db, cfg.RetentionDays, logger)

	srv := newDiagnosticsServer(cfg.Server.Port, registry, logger)
	go func() {
		if err := srv.start(); err != nil {
			logger.WithError(err).Error("Diagnostics server stopped")
		}
	}()
	defer srv.shutdown()

	logger.Info("lxmchat is running")
	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

func tracingConfigFrom(cfg models.TracingConfig) tracing.TracingConfig {
	out := tracing.DefaultTracingConfig()
	out.Enabled = cfg.Enabled
	out.UseStdout = cfg.UseStdout
	if cfg.ServiceName != "" {
		out.ServiceName = cfg.ServiceName
	}
	if cfg.ServiceVersion != "" {
		out.ServiceVersion = cfg.ServiceVersion
	}
	if cfg.Environment != "" {
		out.Environment = cfg.Environment
	}
	if cfg.OTLPEndpoint != "" {
		out.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.SampleRate > 0 {
		out.SampleRate = cfg.SampleRate
	}
	return out
}
