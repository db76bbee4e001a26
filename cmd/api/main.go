// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sfportal/internal/adapter/storage"
	"sfportal/internal/adapter/upstream"
	"sfportal/internal/config"
	"sfportal/internal/logging"
	"sfportal/internal/server"
	"sfportal/internal/service/explorer"
	"sfportal/internal/service/geocode"
	"sfportal/internal/service/stats"
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Close()

	// Initialize storage adapters
	incidentStore := storage.NewIncidentStore(db)
	statsStore := storage.NewStatsStore(db)

	// Initialize services
	statsService := stats.NewService(statsStore, cfg.Stats.CacheTTL, cfg.Stats.SweepInterval)

	upstreamClient := upstream.NewClient(
		cfg.Upstream.BaseURL,
		cfg.Upstream.Timeout,
		cfg.Upstream.UserAgent,
		cfg.Upstream.MaxBodyBytes,
	)

	explorerManager := explorer.NewManager(
		upstreamClient,
		natsConn,
		logger,
		explorer.ManagerConfig{
			SubjectPrefix: cfg.Explorer.SubjectPrefix,
			IdleTTL:       cfg.Explorer.IdleTTL,
			SweepInterval: cfg.Explorer.SweepInterval,
		},
	)
	if err := explorerManager.Start(ctx); err != nil {
		logger.Fatal("Failed to start explorer manager", zap.Error(err))
	}

	// Initialize coordinate backfill
	var backfill *geocode.Backfill
	if cfg.Geocoder.Enabled {
		geocoder := geocode.NewClient(
			cfg.Geocoder.BaseURL,
			cfg.Geocoder.UserAgent,
			cfg.Geocoder.Timeout,
			cfg.Geocoder.RequestsPerSecond,
		)

		backfill = geocode.NewBackfill(
			geocoder,
			incidentStore,
			natsConn,
			logger,
			geocode.BackfillConfig{
				Interval:  cfg.Geocoder.Interval,
				BatchSize: cfg.Geocoder.BatchSize,
				Subject:   cfg.Geocoder.Subject,
			},
		)
		if err := backfill.Start(ctx); err != nil {
			logger.Fatal("Failed to start geocode backfill", zap.Error(err))
		}
	}

	// Initialize HTTP server
	httpServer := server.NewServer(
		cfg.Server,
		natsConn,
		incidentStore,
		statsService,
		explorerManager,
		logger,
	)

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	explorerManager.Stop()
	if backfill != nil {
		backfill.Stop()
	}

	logger.Info("Shutdown complete")
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
