// Package cli implements the ragctl commands. The CLI wires the same
// pipeline as the server but in-process, so corpus maintenance and ad-hoc
// questions work without a running daemon. With the memory index driver
// every invocation starts empty; use the bolt or redis driver for state
// that outlives one command.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skryne/ragd/internal/chunker"
	"github.com/skryne/ragd/internal/config"
	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/index"
	boltindex "github.com/skryne/ragd/internal/index/bolt"
	memindex "github.com/skryne/ragd/internal/index/memory"
	redisindex "github.com/skryne/ragd/internal/index/redis"
	"github.com/skryne/ragd/internal/loader"
	openaiTransport "github.com/skryne/ragd/internal/transport/openai"
	"github.com/skryne/ragd/internal/version"
)

var (
	envName string
	cfg     config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Manage and query a ragd document index",
	Long: `ragctl operates the question-answering pipeline from the command line:
ingest a document corpus into the vector index and ask questions against it.

Example usage:
  ragctl ingest                          # rebuild the index from the corpus
  ragctl ask -q "What does product B cost?"
  ragctl ask -q "And product A?" --session s1 --stream`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(envName)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// quiet by default; the pipeline logs interleave badly with bars
		// and streamed tokens
		level := cfg.Logging.Level
		if level == "" {
			level = "warn"
		}
		logger, err = newLogger(level)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", config.GetEnv(),
		"config environment name (reads config/<env>.yaml)")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

// openIndex creates the configured index driver tagged with the embedder
// identity. The caller owns Close.
func openIndex(embedderID string) (index.Index, error) {
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
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index driver %q: %w", cfg.Index.Driver, domain.ErrInvalidConfig)
	}
}

// newEmbedders builds the shared provider plus the instruction-decorated
// ingestion and query paths. Both report the same identifier, so they are
// interchangeable from the index guard's point of view.
func newEmbedders() (doc, query domain.Embedder) {
	var shared domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	if cfg.Embedding.RateLimitPerSec > 0 {
		shared = openaiTransport.NewRateLimitedEmbedder(shared, cfg.Embedding.RateLimitPerSec)
	}

	doc, query = shared, shared
	if inst := cfg.Embedding.DocumentInstruction; inst != "" {
		doc = domain.NewInstructionEmbedder(shared, inst)
	}
	if inst := cfg.Embedding.QueryInstruction; inst != "" {
		query = domain.NewInstructionEmbedder(shared, inst)
	}
	return doc, query
}

func newSplitter() (*chunker.Splitter, error) {
	return chunker.New(chunker.Config{
		MaxChunkChars: cfg.Chunking.MaxChunkChars,
		OverlapChars:  cfg.Chunking.Overlap(),
		MinChunkChars: cfg.Chunking.MinChunk(),
		Separators:    cfg.Chunking.Separators,
	})
}

func newLoader() (*loader.Loader, error) {
	return loader.New(loader.Config{
		Path:    cfg.Documents.Path,
		Include: cfg.Documents.Include,
		Exclude: cfg.Documents.Exclude,
	})
}
