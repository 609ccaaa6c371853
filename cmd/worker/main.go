// Background worker entry point: renders protest reports requested through
// the event bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fairclaim/protest-engine/internal/application/reporting"
	"github.com/fairclaim/protest-engine/internal/config"
	"github.com/fairclaim/protest-engine/internal/infrastructure/database/postgres"
	"github.com/fairclaim/protest-engine/internal/infrastructure/database/postgres/repositories"
	"github.com/fairclaim/protest-engine/internal/infrastructure/messaging/kafka"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/internal/infrastructure/storage/minio"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: using default configuration: %v\n", err)
		cfg = config.NewDefaultConfig()
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization failed: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("worker")

	logger.Info("starting protest-engine worker",
		logging.String("version", config.Version),
		logging.Any("brokers", cfg.Kafka.Brokers),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker failed", logging.Err(err))
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx := context.Background()

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

	sessionRepo := repositories.NewPostgresSessionRepo(pgConn, logger)
	reportRepo := repositories.NewPostgresReportRepo(pgConn, logger)

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

	// Kafka producer for completion events.
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		MaxRetries: cfg.Kafka.ProducerRetries,
		BatchSize:  cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	reportingSvc := reporting.NewService(sessionRepo, reportRepo, objectStore, producer, nil, logger)

	// Kafka consumer for report requests.
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		Topics:          []string{kafka.TopicReportRequested},
		StartOffset:     cfg.Kafka.AutoOffsetReset,
		MaxRetries:      cfg.Worker.MaxRetries,
		RetryBackoff:    cfg.Worker.RetryBackoff,
		DeadLetterTopic: kafka.TopicReportRequested + ".dlq",
	}, logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}

	consumer.Subscribe(kafka.TopicReportRequested, reportingSvc.HandleReportRequested)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := consumer.Start(runCtx); err != nil {
		return fmt.Errorf("consumer start: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutting down", logging.String("signal", sig.String()))
	cancel()

	if err := consumer.Close(); err != nil {
		logger.Error("consumer close error", logging.Err(err))
	}

	logger.Info("worker stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return config.Load(path)
}
