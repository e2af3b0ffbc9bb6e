package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/caelum-cloud/geosearch/internal/config"
	dbRedis "github.com/caelum-cloud/geosearch/internal/db/redis"
	"github.com/caelum-cloud/geosearch/internal/domain"
	logpkg "github.com/caelum-cloud/geosearch/internal/logger"
	"github.com/caelum-cloud/geosearch/internal/metrics"
	batchrepo "github.com/caelum-cloud/geosearch/internal/repository/batch"
	"github.com/caelum-cloud/geosearch/internal/repository/embcache"
	indexrepo "github.com/caelum-cloud/geosearch/internal/repository/index"
	chiTransport "github.com/caelum-cloud/geosearch/internal/transport/chi"
	openaiEmb "github.com/caelum-cloud/geosearch/internal/transport/openai"
	bootstrapuc "github.com/caelum-cloud/geosearch/internal/usecase/bootstrap"
	healthuc "github.com/caelum-cloud/geosearch/internal/usecase/health"
	ingestuc "github.com/caelum-cloud/geosearch/internal/usecase/ingest"
	searchuc "github.com/caelum-cloud/geosearch/internal/usecase/search"
	"github.com/caelum-cloud/geosearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting geosearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("index", cfg.Index.Name),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register service metrics explicitly (no init())
	metrics.Register()

	embedder, err := buildEmbedder(cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	indexRepo := indexrepo.New(store, indexrepo.Config{
		IndexName:       cfg.Index.Name,
		KeyPrefix:       cfg.Database.KeyPrefix,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
	})
	batchRepo := batchrepo.New(store, cfg.Database.KeyPrefix)

	// Ensure the index mapping before serving. A schema conflict is fatal.
	recordSchema, err := bootstrapuc.Run(ctx, cfg.Index.SchemaPath, cfg.Embedding.Dimensions, indexRepo, logger)
	if err != nil {
		logger.Fatal("Index bootstrap failed", zap.Error(err))
	}

	searchSvc := searchuc.New(indexRepo, embedder, searchuc.Config{
		PageSize:           cfg.Search.PageSize,
		MaxPageSize:        cfg.Search.MaxPageSize,
		SearchThreshold:    cfg.Search.SearchThreshold,
		ConfidentThreshold: cfg.Search.ConfidentThreshold,
		LexicalWeight:      cfg.Search.LexicalWeight,
		OverfetchFactor:    cfg.Search.OverfetchFactor,
		QueryTimeout:       time.Duration(cfg.Search.QueryTimeoutSec) * time.Second,
	}, logger)

	ingestSvc := ingestuc.New(batchRepo, indexRepo, embedder, recordSchema, ingestuc.Config{
		Workers:        cfg.Ingest.Workers,
		MaxBatchSize:   cfg.Ingest.MaxBatchSize,
		MaxRetries:     cfg.Ingest.MaxRetries,
		RetryBase:      time.Duration(cfg.Ingest.RetryBaseMs) * time.Millisecond,
		AttemptTimeout: time.Duration(cfg.Ingest.AttemptTimeoutSec) * time.Second,
	}, logger)

	workers, err := ingestuc.StartWorkers(ingestSvc, cfg.Ingest.Workers, logger)
	if err != nil {
		logger.Fatal("Failed to start ingestion workers", zap.Error(err))
	}
	logger.Info("Ingestion workers started", zap.Int("workers", cfg.Ingest.Workers))

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder), indexRepo)

	server := chiTransport.NewServer(searchSvc, ingestSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware)
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Let in-flight batches finish before closing the store.
	workers.Stop()

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the embedder chain: OpenAI-compatible provider
// wrapped by the Redis-backed cache.
func buildEmbedder(cfg config.Config, store *dbRedis.Store, logger *zap.Logger) (domain.Embedder, error) {
	base, err := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
		Pooling:    cfg.Embedding.Pooling,
		Normalize:  cfg.Embedding.Normalize,
		Quantized:  cfg.Embedding.Quantized,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(cfg.Embedding.CacheTTLSec) * time.Second
	return embcache.New(base, store, cfg.Database.KeyPrefix, ttl, metrics.EmbeddingCacheTotal, logger), nil
}

// embeddingHealthChecker adapts the embedder chain to the health check
// contract. The cache decorator does not implement HealthCheck itself.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
