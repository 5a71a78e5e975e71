// Package cmd provides the memsearchd CLI command tree.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/memsearch/memsearch/internal/bm25"
	"github.com/memsearch/memsearch/internal/config"
	"github.com/memsearch/memsearch/internal/embedding"
	"github.com/memsearch/memsearch/internal/hybrid"
	"github.com/memsearch/memsearch/internal/logging"
	"github.com/memsearch/memsearch/internal/scoring"
	"github.com/memsearch/memsearch/internal/service"
	"github.com/memsearch/memsearch/internal/store"
	"github.com/memsearch/memsearch/pkg/version"
)

var (
	configDir      string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the memsearchd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memsearchd",
		Short:   "Hybrid semantic memory retrieval core",
		Long:    "memsearchd exercises the hybrid BM25+vector memory retrieval core directly from the command line: store memories, recall them by free-text query, and inspect or delete individual units.",
		Version: version.Version,
	}
	cmd.SetVersionTemplate("memsearchd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory to look for .memsearch.yaml in")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to ~/.memsearch/logs/memsearchd.log")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newStoreCmd())
	cmd.AddCommand(newRecallCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables debug file logging when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// bootstrap wires a Service from the layered config: it is the CLI's
// composition root, mirroring the one a long-running server process would
// run at startup.
type bootstrap struct {
	cfg *config.Config
	st  store.MemoryStore
	idx *bm25.Index
	svc *service.Service
}

func newBootstrap(ctx context.Context, logger *slog.Logger) (*bootstrap, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider, err := embedding.New(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		Endpoint:   cfg.Embedding.Endpoint,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		TimeoutS:   cfg.Embedding.TimeoutS,
		MaxFanOut:  1,
	}, 1024, time.Duration(cfg.Embedding.CacheTTLMin)*time.Minute)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}

	idx := bm25.New()

	svcCfg := service.DefaultConfig()
	svcCfg.ScoringWeights = scoring.Weights{
		Alpha:       cfg.Scoring.Alpha,
		Beta:        cfg.Scoring.Beta,
		Gamma:       cfg.Scoring.Gamma,
		Delta:       cfg.Scoring.Delta,
		Decay:       cfg.Scoring.Decay,
		ExpectedMax: cfg.Scoring.ExpectedMax,
	}
	svcCfg.SearchDefaults = hybrid.Options{
		Limit:         cfg.Search.DefaultLimit,
		DenseWeight:   cfg.Search.DenseWeight,
		SparseWeight:  cfg.Search.SparseWeight,
		RRFK:          cfg.Search.RRFK,
		MinFusedScore: cfg.Search.MinScore,
		UseMMR:        cfg.Search.UseMMR,
		MMRLambda:     cfg.Search.MMRLambda,
	}

	opts := []service.Option{}
	if logger != nil {
		opts = append(opts, service.WithLogger(logging.For(logger, "service")))
	}
	svc := service.New(ctx, st, provider, idx, svcCfg, opts...)

	// The BM25 index is in-process; rebuild it from whatever the backend
	// already holds so persistent stores recall lexically across runs.
	if err := svc.ReindexBM25(ctx); err != nil {
		_ = svc.Close()
		_ = st.Close()
		return nil, fmt.Errorf("replay bm25 index: %w", err)
	}

	return &bootstrap{cfg: cfg, st: st, idx: idx, svc: svc}, nil
}

func (b *bootstrap) Close() error {
	_ = b.svc.Close()
	return b.st.Close()
}

// openStore selects and opens the configured MemoryStore backend
// (storage.type: memory|sqlite|hnsw). The remote gRPC backend needs a
// live dial target, so the CLI does not attempt it here; use it
// programmatically via internal/store/remote instead.
func openStore(cfg *config.Config) (store.MemoryStore, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		return store.Open(cfg.Storage.Connection, store.Options{
			Dimension: cfg.Storage.Dimensions,
			WAL:       cfg.Storage.WAL,
		})
	case "hnsw":
		return store.NewHNSWStore(cfg.Storage.Dimensions), nil
	case "memory", "":
		return store.NewMemStore(cfg.Storage.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported storage.type %q for the CLI (use memory, sqlite, or hnsw)", cfg.Storage.Type)
	}
}
