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
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/skryne/ragd/internal/chunker"
	"github.com/skryne/ragd/internal/config"
	"github.com/skryne/ragd/internal/conversation"
	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/index"
	boltindex "github.com/skryne/ragd/internal/index/bolt"
	memindex "github.com/skryne/ragd/internal/index/memory"
	redisindex "github.com/skryne/ragd/internal/index/redis"
	"github.com/skryne/ragd/internal/loader"
	logpkg "github.com/skryne/ragd/internal/logger"
	"github.com/skryne/ragd/internal/metrics"
	"github.com/skryne/ragd/internal/prompt"
	"github.com/skryne/ragd/internal/retriever"
	chiTransport "github.com/skryne/ragd/internal/transport/chi"
	openaiTransport "github.com/skryne/ragd/internal/transport/openai"
	"github.com/skryne/ragd/internal/usecase/ask"
	"github.com/skryne/ragd/internal/usecase/ingest"
	"github.com/skryne/ragd/internal/version"
)

func main() {
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_driver", cfg.Index.Driver),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
	)

	// Register Prometheus collectors explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterRetrievalMetrics()

	// Base embedding provider, shared by both instruction-decorated paths.
	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	var shared domain.Embedder = baseEmbedder
	if cfg.Embedding.RateLimitPerSec > 0 {
		shared = openaiTransport.NewRateLimitedEmbedder(shared, cfg.Embedding.RateLimitPerSec)
	}

	docEmbedder := buildEmbedder(shared, cfg.Embedding.DocumentInstruction)
	queryEmbedder := buildEmbedder(shared, cfg.Embedding.QueryInstruction)
	logger.Info("Embedders created",
		zap.String("identifier", shared.Identifier()),
		zap.Float64("rate_limit_per_sec", cfg.Embedding.RateLimitPerSec),
	)

	idx, err := buildIndex(cfg, shared.Identifier(), logger)
	if err != nil {
		logger.Fatal("Failed to create index", zap.Error(err))
	}
	defer func() { _ = idx.Close() }()

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:  cfg.Generation.APIKey,
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Logger:  logger,
	})

	splitter, err := chunker.New(chunker.Config{
		MaxChunkChars: cfg.Chunking.MaxChunkChars,
		OverlapChars:  cfg.Chunking.Overlap(),
		MinChunkChars: cfg.Chunking.MinChunk(),
		Separators:    cfg.Chunking.Separators,
	})
	if err != nil {
		logger.Fatal("Failed to create splitter", zap.Error(err))
	}

	docs, err := loader.New(loader.Config{
		Path:    cfg.Documents.Path,
		Include: cfg.Documents.Include,
		Exclude: cfg.Documents.Exclude,
	})
	if err != nil {
		logger.Fatal("Failed to create document loader", zap.Error(err))
	}

	assembler, err := prompt.NewAssembler(prompt.AssemblerConfig{
		HistoryWindow:   cfg.Conversation.HistoryWindow,
		MaxContextChars: cfg.Conversation.MaxContextChars,
	})
	if err != nil {
		logger.Fatal("Failed to create assembler", zap.Error(err))
	}

	conversations := conversation.NewStore(cfg.Conversation.MaxTurns)

	var retrieverOpts []retriever.Option
	if cfg.Retrieval.MaxDistance > 0 {
		retrieverOpts = append(retrieverOpts, retriever.WithMaxDistance(cfg.Retrieval.MaxDistance))
	}
	ret := retriever.New(idx, queryEmbedder, retrieverOpts...)

	askSvc := ask.New(ret, assembler, generator, conversations, logger,
		ask.WithTopK(cfg.Retrieval.TopK))
	ingestSvc := ingest.New(docs, splitter, docEmbedder, idx, logger)

	server := chiTransport.NewServer(askSvc, ingestSvc, conversations, docs, idx, baseEmbedder, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder wraps the shared provider with an instruction prefix when one
// is configured. Prefixes do not change the vector space, so both paths stay
// compatible with one index tag.
func buildEmbedder(shared domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return shared
	}
	return domain.NewInstructionEmbedder(shared, instruction)
}

// buildIndex creates the configured index driver, tagged with the embedder
// identity so foreign vectors are rejected from the first insert on.
func buildIndex(cfg config.Config, embedderID string, logger *zap.Logger) (index.Index, error) {
	metric, err := index.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	dim := cfg.Embedding.Dimensions

	switch cfg.Index.Driver {
	case "memory":
		return memindex.New(dim, embedderID, metric)
	case "bolt":
		return boltindex.Open(cfg.Index.Bolt.Path, dim, embedderID, metric)
	case "redis":
		idx, err := redisindex.New(redisindex.Config{
			Addrs:          cfg.Index.Redis.Addrs,
			Username:       cfg.Index.Redis.Username,
			Password:       cfg.Index.Redis.Password,
			DB:             cfg.Index.Redis.DB,
			Dimension:      dim,
			Embedder:       embedderID,
			Metric:         metric,
			M:              cfg.Index.Redis.HNSWM,
			EFConstruction: cfg.Index.Redis.HNSWEFConstruct,
		})
		if err != nil {
			return nil, err
		}
		ctx := context.Background()
		timeout := time.Duration(cfg.Index.Redis.ReadinessTimeout) * time.Second
		if err := idx.WaitForReady(ctx, timeout); err != nil {
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		if err := idx.Ensure(ctx); err != nil {
			return nil, fmt.Errorf("ensure vector index: %w", err)
		}
		logger.Info("Connected to redis index", zap.Strings("addrs", cfg.Index.Redis.Addrs))
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index driver %q: %w", cfg.Index.Driver, domain.ErrInvalidConfig)
	}
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
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
