// API server entry point for the protest engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairclaim/protest-engine/internal/application/analysis"
	"github.com/fairclaim/protest-engine/internal/application/reporting"
	"github.com/fairclaim/protest-engine/internal/application/workflow"
	"github.com/fairclaim/protest-engine/internal/config"
	"github.com/fairclaim/protest-engine/internal/infrastructure/database/postgres"
	"github.com/fairclaim/protest-engine/internal/infrastructure/database/postgres/repositories"
	"github.com/fairclaim/protest-engine/internal/infrastructure/database/redis"
	"github.com/fairclaim/protest-engine/internal/infrastructure/datasource/hcad"
	"github.com/fairclaim/protest-engine/internal/infrastructure/messaging/kafka"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/fairclaim/protest-engine/internal/infrastructure/storage/minio"
	"github.com/fairclaim/protest-engine/internal/intelligence/analyzer"
	httpserver "github.com/fairclaim/protest-engine/internal/interfaces/http"
	"github.com/fairclaim/protest-engine/internal/interfaces/http/handlers"
	"github.com/fairclaim/protest-engine/internal/interfaces/http/middleware"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: using default configuration: %v\n", err)
		cfg = config.NewDefaultConfig()
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization failed: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting protest-engine API server",
		logging.String("version", config.Version),
		logging.Int("port", cfg.Server.Port),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", logging.Err(err))
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx := context.Background()

	// Metrics.
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace: cfg.Metrics.Namespace,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	metrics := prometheus.NewAppMetrics(collector)

	// PostgreSQL.
	pgConn, err := postgres.NewConnection(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.DBName,
		Username:        cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pgConn.Close()

	if cfg.Database.MigrationPath != "" {
		if err := pgConn.RunMigrations(cfg.Database.MigrationPath); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	propertyRepo := repositories.NewPostgresPropertyRepo(pgConn, logger)
	sessionRepo := repositories.NewPostgresSessionRepo(pgConn, logger)
	reportRepo := repositories.NewPostgresReportRepo(pgConn, logger)

	// Redis.
	redisClient, err := redis.NewClient(redis.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	cache := redis.NewCache(redisClient, logger)

	// Kafka producer.
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		MaxRetries: cfg.Kafka.ProducerRetries,
		BatchSize:  cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	// MinIO.
	storeClient, err := minio.NewClient(minio.Config{
		Endpoint:        cfg.MinIO.Endpoint,
		AccessKeyID:     cfg.MinIO.AccessKey,
		SecretAccessKey: cfg.MinIO.SecretKey,
		UseSSL:          cfg.MinIO.UseSSL,
		EvidenceBucket:  cfg.MinIO.EvidenceBucket,
		ReportBucket:    cfg.MinIO.ReportBucket,
		PresignExpiry:   cfg.MinIO.PresignExpiry,
	}, logger)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	if err := storeClient.EnsureBuckets(ctx); err != nil {
		return fmt.Errorf("minio buckets: %w", err)
	}
	objectStore := minio.NewObjectStorage(storeClient, logger)

	// County data source and comparable-selection model.
	source, err := hcad.New(hcad.Config{
		BaseURL:        cfg.DataSource.BaseURL,
		APIKey:         cfg.DataSource.APIKey,
		RequestTimeout: cfg.DataSource.RequestTimeout,
		MaxRetries:     cfg.DataSource.MaxRetries,
		RetryBackoff:   cfg.DataSource.RetryBackoff,
	}, logger)
	if err != nil {
		return fmt.Errorf("hcad datasource: %w", err)
	}

	azCfg := analyzer.NewConfig()
	azCfg.BaseURL = cfg.Analyzer.BaseURL
	azCfg.APIKey = cfg.Analyzer.APIKey
	if cfg.Analyzer.Model != "" {
		azCfg.Model = cfg.Analyzer.Model
	}
	if cfg.Analyzer.RequestTimeout > 0 {
		azCfg.RequestTimeout = cfg.Analyzer.RequestTimeout
	}
	if cfg.Analyzer.MaxCandidates > 0 {
		azCfg.MaxCandidates = cfg.Analyzer.MaxCandidates
	}
	az, err := analyzer.New(azCfg, logger)
	if err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}

	// Application services.
	analysisSvc := analysis.NewService(source, propertyRepo, cache, az, producer, metrics, logger, analysis.Config{
		MinComparables: cfg.Valuation.MinComparables,
		PropertyTTL:    cfg.DataSource.CacheTTL,
	})

	workflowSvc := workflow.NewService(sessionRepo, analysisSvc, newSessionLocker(redisClient), objectStore, producer, metrics, logger, workflow.Config{
		MinAdjustmentPercent: cfg.Valuation.MinAdjustmentPercent,
		MaxAdjustmentPercent: cfg.Valuation.MaxAdjustmentPercent,
		MinComparables:       cfg.Valuation.MinComparables,
	})

	reportingSvc := reporting.NewService(sessionRepo, reportRepo, objectStore, producer, nil, logger)

	// HTTP layer.
	healthHandler := handlers.NewHealthHandler(
		handlers.CheckerFunc{CheckName: "postgres", Check: pgConn.HealthCheck},
		handlers.CheckerFunc{CheckName: "redis", Check: redisClient.Ping},
		handlers.CheckerFunc{CheckName: "minio", Check: storeClient.HealthCheck},
	)

	cors := middleware.DefaultCORSConfig()
	router := httpserver.NewRouter(httpserver.RouterConfig{
		PropertyHandler:  handlers.NewPropertyHandler(analysisSvc),
		SessionHandler:   handlers.NewSessionHandler(workflowSvc, analysisSvc, objectStore),
		ReportHandler:    handlers.NewReportHandler(reportingSvc, workflowSvc),
		HealthHandler:    healthHandler,
		Logger:           logger,
		Metrics:          metrics,
		MetricsCollector: collector,
		CORS:             &cors,
		Mode:             cfg.Server.Mode,
	})

	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", logging.String("signal", sig.String()))
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", logging.Err(err))
	}

	logger.Info("server stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return config.Load(path)
}
