package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"confhub/internal/database"
	"confhub/internal/events"
	"confhub/internal/logger"
	"confhub/internal/notify"
	"confhub/internal/retry"
	"confhub/internal/server/api"
	"confhub/internal/server/config"
	"confhub/internal/server/replication"
	"confhub/internal/server/repository"
	"confhub/internal/server/service"
	"confhub/internal/version"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(&cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log = log.Named("server")
	defer func() { _ = log.Sync() }()

	retry.SetLogger(log.Sugar().Named("retry").Debugf)
	log.Info("Starting confhub", version.GetInfo().Fields()...)

	if err := run(cfg, log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
	log.Info("Shutdown complete")
}

// run wires the server components and blocks until a shutdown signal
func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	store := repository.NewStore(db, log)

	// Change events
	bus := events.NewMemoryBus(log)
	defer bus.Close()

	if cfg.Events.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Events.Redis.Addr,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
		})
		defer func() { _ = client.Close() }()

		bridge := events.NewRedisBridge(client, bus, cfg.Events.Redis.Channel, cfg.Events.SubscriberBuffer, log)
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("failed to start redis bridge: %w", err)
		}
		defer bridge.Stop()
	}

	if cfg.Events.Kafka.Enabled {
		writer := events.NewKafkaWriter(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, cfg.Events.Kafka.BatchTimeout)
		changeLog := events.NewKafkaChangeLog(writer, bus, cfg.Events.SubscriberBuffer, log)
		changeLog.Start(ctx)
		defer func() {
			if err := changeLog.Stop(); err != nil {
				log.Error("Failed to stop kafka change log", zap.Error(err))
			}
		}()
	}

	if cfg.Notify.Enabled {
		notifier, err := notify.NewManager(cfg.Notify, &cfg.Retry, log)
		if err != nil {
			return fmt.Errorf("failed to initialize notifications: %w", err)
		}
		notifier.Start(ctx, bus, cfg.Events.SubscriberBuffer)
		defer func() {
			if err := notifier.Stop(); err != nil {
				log.Error("Failed to stop notifications", zap.Error(err))
			}
		}()
	}

	// Initialize service
	svc, err := service.NewService(cfg, store, bus, log)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Error("Failed to stop service", zap.Error(err))
		}
	}()

	// SDK replication
	hub := replication.NewHub(cfg.Replication, bus, store.Repos().Configs, log)
	hub.Start(context.Background(), cfg.Events.SubscriberBuffer)
	defer hub.Stop()

	// Initialize router
	router, err := api.NewRouter(cfg, svc, hub, log)
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting server",
			zap.String("address", cfg.Server.Address),
			zap.Bool("tls", cfg.Server.TLS.Enabled))

		var err error
		if cfg.Server.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	}

	// Graceful shutdown. Websocket sessions are hijacked connections that
	// Shutdown does not wait for; the deferred hub.Stop closes them.
	log.Info("Starting graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	return nil
}
