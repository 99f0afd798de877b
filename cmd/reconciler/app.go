package main

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/creditsync/internal/reconcile"
	"github.com/your-org/creditsync/pkg/config"
	"github.com/your-org/creditsync/pkg/kafka"
	"github.com/your-org/creditsync/pkg/ledger"
	"github.com/your-org/creditsync/pkg/logger"
	"github.com/your-org/creditsync/pkg/storage/remotestore"
	"github.com/your-org/creditsync/pkg/tracing"
)

// app holds the shared wiring for serve and submit.
type app struct {
	cfg           *config.Config
	logger        *zap.Logger
	ledger        *ledger.Repository
	producer      *kafka.Producer
	service       *reconcile.Service
	traceShutdown func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  tracing.ParseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	repo, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.DSN, cfg.Ledger.AutoMigrate)
	if err != nil {
		_ = traceShutdown(context.Background())
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	primary, err := remotestore.New(endpointConfig("primary", cfg.Primary))
	if err != nil {
		_ = repo.Close()
		_ = traceShutdown(context.Background())
		return nil, fmt.Errorf("init primary store: %w", err)
	}
	downstream, err := remotestore.New(endpointConfig("downstream", cfg.Downstream))
	if err != nil {
		_ = repo.Close()
		_ = traceShutdown(context.Background())
		return nil, fmt.Errorf("init downstream store: %w", err)
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.DeliveryTopic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})
	if !producer.Enabled() {
		logr.Info("kafka brokers not configured, delivery reports disabled")
	}

	service := reconcile.NewService(reconcile.Params{
		Ledger:        repo,
		Callbacks:     repo,
		Source:        primary,
		Primary:       primary,
		Downstream:    downstream,
		Publisher:     producer,
		Logger:        logr,
		SourceDir:     cfg.Pipeline.SourceDir,
		ArtifactLimit: cfg.Pipeline.ArtifactLimit,
		SystemID:      cfg.Pipeline.SystemID,
		DefaultTargets: reconcile.Targets{
			PrimaryPDF:     cfg.Primary.PDFPath,
			PrimaryJSON:    cfg.Primary.JSONPath,
			DownstreamPDF:  cfg.Downstream.PDFPath,
			DownstreamJSON: cfg.Downstream.JSONPath,
		},
	})

	return &app{
		cfg:           cfg,
		logger:        logr,
		ledger:        repo,
		producer:      producer,
		service:       service,
		traceShutdown: traceShutdown,
	}, nil
}

func endpointConfig(name string, ec config.EndpointConfig) remotestore.Config {
	return remotestore.Config{
		Name:           name,
		Provider:       ec.Provider,
		Host:           ec.Host,
		Port:           ec.Port,
		User:           ec.User,
		Password:       ec.Password,
		KnownHostsFile: ec.KnownHostsFile,
		DialTimeout:    ec.DialTimeout,
		Endpoint:       ec.Endpoint,
		Region:         ec.Region,
		Bucket:         ec.Bucket,
		AccessKey:      ec.AccessKey,
		SecretKey:      ec.SecretKey,
		UseSSL:         ec.UseSSL,
	}
}

func (a *app) close(ctx context.Context) {
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close failed", zap.Error(err))
	}
	if err := a.ledger.Close(); err != nil {
		a.logger.Error("ledger close failed", zap.Error(err))
	}
	if err := a.traceShutdown(ctx); err != nil {
		a.logger.Error("tracing shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
