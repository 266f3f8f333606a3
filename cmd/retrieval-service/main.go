package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quangdp/newsbrief-be/internal/bus"
	"github.com/quangdp/newsbrief-be/internal/config"
	"github.com/quangdp/newsbrief-be/internal/jobs"
	"github.com/quangdp/newsbrief-be/internal/news"
	"github.com/quangdp/newsbrief-be/internal/retrieval"
	"github.com/quangdp/newsbrief-be/internal/store"
	"github.com/quangdp/newsbrief-be/internal/telemetry"
	"github.com/quangdp/newsbrief-be/shared/logger"
	"github.com/quangdp/newsbrief-be/shared/postgresql"
	"github.com/quangdp/newsbrief-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("RETRIEVAL_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/retrieval-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateRetrievalConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	apiKey := os.Getenv("NEWSAPI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("NEWSAPI_API_KEY is required")
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting retrieval service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	jobStore := store.NewJobStore(dbClient, appLogger.Logger)

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	messageBus := bus.NewRabbitBus(rabbitClient, appLogger.Logger, bus.RabbitOptions{
		Concurrency: cfg.RabbitMQ.Consumer.Concurrency,
		Prefetch:    cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	jobService := jobs.NewService(jobStore, messageBus, cfg.Channels.Submissions, appLogger.Logger)

	newsClient := news.NewClient(apiKey,
		news.WithBaseURL(cfg.NewsAPI.BaseURL),
		news.WithLanguage(cfg.NewsAPI.Language),
		news.WithRateLimit(cfg.NewsAPI.RateLimit),
		news.WithHTTPClient(&http.Client{Timeout: cfg.NewsAPI.RequestTimeout}),
	)

	forwarder := retrieval.NewForwarder(messageBus, cfg.Channels.Summaries, appLogger.Logger)
	notifier := retrieval.NewNotifier(messageBus, cfg.Channels.Updates, appLogger.Logger)
	worker := retrieval.NewWorker(jobService, newsClient, forwarder, notifier, appLogger.Logger)

	subscription, err := worker.Subscribe(messageBus, cfg.Channels.Submissions)
	if err != nil {
		return fmt.Errorf("failed to subscribe to submissions channel: %w", err)
	}

	// Metrics endpoint for the event-driven service.
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: telemetry.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Metrics server failed",
				slog.Any("error", err),
			)
		}
	}()

	appLogger.Info("Retrieval service started successfully",
		slog.String("submissions_channel", cfg.Channels.Submissions),
		slog.String("summaries_channel", cfg.Channels.Summaries),
		slog.Int("concurrency", cfg.RabbitMQ.Consumer.Concurrency),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	done := make(chan struct{})
	go func() {
		subscription.Close()
		metricsSrv.Close()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Subscription closed gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Retrieval service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
