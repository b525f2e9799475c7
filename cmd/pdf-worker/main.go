// pdf-worker consumes bulk document-generation jobs from Redis, drives the
// remote PDF rendering service until each job is terminal, and records the
// per-item results in Redis plus, when a database is configured, the
// documents table.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/db"
	"github.com/t-saturn/certificados-gra/internal/docgen"
	"github.com/t-saturn/certificados-gra/internal/jobstore"
	"github.com/t-saturn/certificados-gra/internal/metrics"
	"github.com/t-saturn/certificados-gra/internal/pdfservice"
	"github.com/t-saturn/certificados-gra/internal/repositories"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	redisAddr      string
	redisPassword  string
	redisDB        int
	queueName      string
	pdfBaseURL     string
	pollIntervalMS int
	maxPollSeconds int
	dbDriver       string
	dbDSN          string
	metricsAddr    string
	logLevel       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "pdf-worker",
		Short: "pdf-worker — bulk document generation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pdf-worker %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	f := root.PersistentFlags()
	f.StringVar(&cfg.redisAddr, "redis-addr", envOrDefault("REDIS_ADDR", "127.0.0.1:6379"), "Redis address")
	f.StringVar(&cfg.redisPassword, "redis-password", envOrDefault("REDIS_PASSWORD", ""), "Redis password (empty = none)")
	f.IntVar(&cfg.redisDB, "redis-db", envIntOrDefault("REDIS_DB", 0), "Redis logical database")
	f.StringVar(&cfg.queueName, "queue", envOrDefault("REDIS_QUEUE_PDF_JOBS", "queue:docs:generate"), "Redis list the bulk jobs arrive on")
	f.StringVar(&cfg.pdfBaseURL, "pdf-base-url", envOrDefault("PDF_SERVICE_BASE_URL", "http://127.0.0.1:5050"), "PDF service base URL")
	f.IntVar(&cfg.pollIntervalMS, "poll-interval-ms", envIntOrDefault("PDF_POLL_INTERVAL_MS", 750), "Delay between remote job polls")
	f.IntVar(&cfg.maxPollSeconds, "max-poll-seconds", envIntOrDefault("PDF_MAX_POLL_SECONDS", 120), "Deadline for the remote job poll loop")
	f.StringVar(&cfg.dbDriver, "db-driver", envOrDefault("DB_DRIVER", "postgres"), "Database driver (postgres or sqlite)")
	f.StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("DB_DSN", ""), "Database DSN (empty = skip documents updates)")
	f.StringVar(&cfg.metricsAddr, "metrics-addr", envOrDefault("METRICS_ADDR", ":9091"), "Prometheus metrics listen address")
	f.StringVar(&cfg.logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func run(ctx context.Context, cfg *config) error {
	_ = godotenv.Load()

	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting pdf-worker",
		zap.String("version", version),
		zap.String("redis_addr", cfg.redisAddr),
		zap.String("queue", cfg.queueName),
		zap.String("pdf_base_url", cfg.pdfBaseURL),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Info("redis connected")

	queue := jobstore.NewQueue(rdb, cfg.queueName)
	tracker := jobstore.NewBulkTracker(rdb)

	// --- PDF service client ---
	httpClient := &http.Client{Timeout: 30 * time.Second}
	pdf := pdfservice.NewClient(httpClient, cfg.pdfBaseURL, logger)

	// --- Documents table (optional) ---
	var docs docgen.DocumentUpdater
	if cfg.dbDSN != "" {
		database, err := db.New(db.Config{
			Driver: cfg.dbDriver,
			DSN:    cfg.dbDSN,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		sqlDB, err := database.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		defer sqlDB.Close()
		docs = repositories.NewDocumentRepository(database)
		logger.Info("documents database connected", zap.String("driver", cfg.dbDriver))
	} else {
		logger.Info("no database configured, documents updates disabled")
	}

	// --- Metrics ---
	sampler, err := metrics.StartQueueSampler(queue, 15*time.Second, logger)
	if err != nil {
		return fmt.Errorf("failed to start queue sampler: %w", err)
	}
	defer func() {
		if err := sampler.Shutdown(); err != nil {
			logger.Warn("sampler shutdown error", zap.Error(err))
		}
	}()

	metricsSrv := &http.Server{Addr: cfg.metricsAddr, Handler: metrics.Handler()}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	defer metricsSrv.Close()

	// --- Worker loop ---
	w := docgen.NewWorker(
		queue,
		tracker,
		pdf,
		docs,
		time.Duration(cfg.pollIntervalMS)*time.Millisecond,
		time.Duration(cfg.maxPollSeconds)*time.Second,
		logger,
	)

	logger.Info("worker ready, waiting for jobs", zap.String("queue", cfg.queueName))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("pdf-worker stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
