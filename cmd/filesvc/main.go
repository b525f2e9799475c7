// file-svc is the bridge to the external object-storage service. It proxies
// uploads (HMAC-signed multipart) and downloads (streamed), publishes the
// files.* lifecycle events, and runs the observational event workers.
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

	"github.com/t-saturn/certificados-gra/internal/bus"
	"github.com/t-saturn/certificados-gra/internal/fileserver"
	"github.com/t-saturn/certificados-gra/internal/filesvc"
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
		Use:   "file-svc",
		Short: "file-svc — storage bridge of the file ingest pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("file-svc %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	f := root.PersistentFlags()
	f.StringVar(&cfg.httpAddr, "http-addr", envOrDefault("HTTP_ADDR", ":8081"), "HTTP listen address")
	f.StringVar(&cfg.redisAddr, "redis-addr", envOrDefault("REDIS_ADDR", "127.0.0.1:6379"), "Redis address")
	f.StringVar(&cfg.redisPassword, "redis-password", envOrDefault("REDIS_PASSWORD", ""), "Redis password (empty = none)")
	f.IntVar(&cfg.redisDB, "redis-db", envIntOrDefault("REDIS_DB", 0), "Redis logical database")
	f.StringVar(&cfg.keyPrefix, "redis-key-prefix", envOrDefault("REDIS_KEY_PREFIX", "filesvc"), "Namespace prefix for redis keys")
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

func run(ctx context.Context, cfg *config) error {
	_ = godotenv.Load()

	logger, err := buildLogger(cfg.logLevel, cfg.logDir, "file-svc")
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

	logger.Info("starting file-svc",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("redis_addr", cfg.redisAddr),
		zap.String("nats_url", cfg.natsURL),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Redis (liveness reporting only in this service) ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	defer rdb.Close()
	store := jobstore.New(rdb, cfg.keyPrefix)

	// --- NATS ---
	nc, err := bus.Connect(cfg.natsURL, "file-svc")
	if err != nil {
		return err
	}
	defer nc.Close()
	logger.Info("nats connected")

	publisher := bus.NewPublisher(nc, "file-svc", logger)
	subscriber := bus.NewSubscriber(nc, logger)

	// --- File server client + service ---
	httpClient := &http.Client{Timeout: 60 * time.Second}
	files := fileserver.NewClient(httpClient, cfg.fileAPIURL, cfg.filePublicURL, logger)
	signer := fileserver.NewSigner(cfg.fileAccessKey, cfg.fileSecretKey)
	svc := filesvc.NewService(files, publisher, signer, cfg.fileProjectID, cfg.filePublicURL, logger)

	// --- Event-log workers ---
	rt := worker.New(func(subject string) (worker.Stream, error) {
		return subscriber.Subscribe(subject)
	}, logger)
	filesvc.RegisterLogWorkers(rt, logger)

	go func() {
		if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event workers stopped", zap.Error(err))
			cancel()
		}
	}()

	// --- HTTP server ---
	router := filesvc.NewRouter(filesvc.RouterConfig{
		Service:        svc,
		Health:         files,
		Redis:          store,
		Bus:            nc,
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
	logger.Info("shutting down file-svc")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("file-svc stopped")
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
