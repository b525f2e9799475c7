// The gateway is the client-facing boundary of the file pipeline. It serves
// the public HTTP surface (uploads, public downloads, job status, health),
// consumes files.upload.requested events for the asynchronous upload path,
// and reads authoritative job state from Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/api"
	"github.com/t-saturn/certificados-gra/internal/bus"
	"github.com/t-saturn/certificados-gra/internal/fileserver"
	"github.com/t-saturn/certificados-gra/internal/jobs"
	"github.com/t-saturn/certificados-gra/internal/jobstore"
	"github.com/t-saturn/certificados-gra/internal/worker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr      string
	redisAddr     string
	redisPassword string
	redisDB       int
	keyPrefix     string
	jobTTLSeconds int
	natsURL       string
	fileAPIURL    string
	filePublicURL string
	fileAccessKey string
	fileSecretKey string
	fileProjectID string
	logLevel      string
	logDir        string
	maxUploadMB   int
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
		Use:   "file-gateway",
		Short: "file-gateway — client boundary of the file ingest pipeline",
		Long: `file-gateway exposes the public HTTP API for uploads, public file
downloads and job status, and drives the asynchronous upload path from
files.upload.requested events. Redis holds the authoritative job state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	f := root.PersistentFlags()
	f.StringVar(&cfg.httpAddr, "http-addr", envOrDefault("HTTP_ADDR", ":8080"), "HTTP listen address")
	f.StringVar(&cfg.redisAddr, "redis-addr", envOrDefault("REDIS_ADDR", "127.0.0.1:6379"), "Redis address")
	f.StringVar(&cfg.redisPassword, "redis-password", envOrDefault("REDIS_PASSWORD", ""), "Redis password (empty = none)")
	f.IntVar(&cfg.redisDB, "redis-db", envIntOrDefault("REDIS_DB", 0), "Redis logical database")
	f.StringVar(&cfg.keyPrefix, "redis-key-prefix", envOrDefault("REDIS_KEY_PREFIX", "filegw"), "Namespace prefix for job keys")
	f.IntVar(&cfg.jobTTLSeconds, "job-ttl-seconds", envIntOrDefault("REDIS_JOB_TTL_SECONDS", 3600), "Job record TTL in seconds")
	f.StringVar(&cfg.natsURL, "nats-url", envOrDefault("NATS_URL", "nats://127.0.0.1:4222"), "NATS server URL")
	f.StringVar(&cfg.fileAPIURL, "file-api-url", envOrDefault("FILE_API_URL", "http://127.0.0.1:9000/api/v1"), "File server API base URL")
	f.StringVar(&cfg.filePublicURL, "file-public-url", envOrDefault("FILE_PUBLIC_URL", "http://127.0.0.1:9000/public"), "File server public base URL")
	f.StringVar(&cfg.fileAccessKey, "file-access-key", envOrDefault("FILE_ACCESS_KEY", ""), "File server access key")
	f.StringVar(&cfg.fileSecretKey, "file-secret-key", envOrDefault("FILE_SECRET_KEY", ""), "File server HMAC secret (required)")
	f.StringVar(&cfg.fileProjectID, "file-project-id", envOrDefault("FILE_PROJECT_ID", ""), "Project id sent with uploads (required)")
	f.StringVar(&cfg.logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	f.StringVar(&cfg.logDir, "log-dir", envOrDefault("LOG_DIR", ""), "Directory for the log file (empty = stdout only)")
	f.IntVar(&cfg.maxUploadMB, "max-upload-mb", envIntOrDefault("MAX_UPLOAD_MB", 100), "Upload body size limit in MiB")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("file-gateway %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	_ = godotenv.Load()

	logger, err := buildLogger(cfg.logLevel, cfg.logDir, "file-gateway")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.fileSecretKey == "" {
		return fmt.Errorf("file secret key is required — set --file-secret-key or FILE_SECRET_KEY")
	}
	if cfg.fileProjectID == "" {
		return fmt.Errorf("file project id is required — set --file-project-id or FILE_PROJECT_ID")
	}

	logger.Info("starting file-gateway",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("redis_addr", cfg.redisAddr),
		zap.String("nats_url", cfg.natsURL),
		zap.String("log_level", cfg.logLevel),
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

	store := jobstore.New(rdb, cfg.keyPrefix)

	// --- NATS ---
	nc, err := bus.Connect(cfg.natsURL, "file-gateway")
	if err != nil {
		return err
	}
	defer nc.Close()
	logger.Info("nats connected")

	publisher := bus.NewPublisher(nc, "file-gateway", logger)
	subscriber := bus.NewSubscriber(nc, logger)

	// --- File server client ---
	httpClient := &http.Client{Timeout: 30 * time.Second}
	files := fileserver.NewClient(httpClient, cfg.fileAPIURL, cfg.filePublicURL, logger)
	signer := fileserver.NewSigner(cfg.fileAccessKey, cfg.fileSecretKey)

	ttl := time.Duration(cfg.jobTTLSeconds) * time.Second
	uploads := jobs.NewService(store, publisher, files, signer, cfg.fileProjectID, ttl, logger)

	// --- Async upload consumer ---
	rt := worker.New(func(subject string) (worker.Stream, error) {
		return subscriber.Subscribe(subject)
	}, logger)
	rt.Handle(bus.SubjectUploadRequested, func(ctx context.Context, subject string, env bus.Envelope) {
		var evt jobs.UploadRequested
		if err := env.DecodePayload(&evt); err != nil {
			logger.Warn("invalid upload.requested payload",
				zap.String("event_id", env.EventID), zap.Error(err))
			return
		}
		uploads.HandleUploadRequested(ctx, evt)
	})

	go func() {
		if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event consumer stopped", zap.Error(err))
			cancel()
		}
	}()

	// --- HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Files:          files,
		Jobs:           store,
		Uploads:        uploads,
		Logger:         logger,
		MaxUploadBytes: int64(cfg.maxUploadMB) << 20,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down file-gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("file-gateway stopped")
	return nil
}

func buildLogger(level, logDir, name string) (*zap.Logger, error) {
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

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, err
		}
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(logDir, name+".log"))
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
