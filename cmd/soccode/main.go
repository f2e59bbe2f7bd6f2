// soccode classifies free-text job descriptions into SOC occupation codes:
// semantic candidate retrieval, LLM classification with a strict response
// grammar, an optional follow-up loop, and multi-rater adjudication.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"soccode/internal/classify"
	"soccode/internal/completion"
	"soccode/internal/config"
	"soccode/internal/embedding"
	"soccode/internal/logging"
	"soccode/internal/retrieval"
	"soccode/internal/search"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "soccode",
	Short: "soccode - SOC occupation code classification service",
	Long: `soccode classifies free-text job descriptions into standardized
occupation (SOC) codes.

Pipeline: embed the description, retrieve a candidate shortlist from a
named vector index, submit the shortlist and conversation to a language
model under a strict response grammar, and parse the structured result.
Disagreeing classifications from multiple raters can be reconciled with
the adjudicate command.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if err := logging.Initialize(logging.Options{
			Dir:        cfg.Logging.Dir,
			Debug:      cfg.Logging.Debug || verbose,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}

		logging.Boot("soccode starting: config=%s search=%s completion=%s",
			configPath, cfg.Search.Provider, cfg.Completion.Provider)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// services wires the classification pipeline from configuration. Constructed
// once per invocation; the caches live inside the retriever.
type services struct {
	retriever *retrieval.Retriever
	client    completion.Client
	service   *classify.Service
}

func buildServices() (*services, error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.EmbeddingTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}
	cached := embedding.NewCachedEngine(engine, cfg.Retrieval.CacheCapacity)

	searcher, err := search.NewSearcher(search.Config{
		Provider:     cfg.Search.Provider,
		APIKey:       cfg.Search.APIKey,
		BaseURL:      cfg.Search.BaseURL,
		Indexes:      cfg.Search.Indexes,
		DatabasePath: cfg.Search.DatabasePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create search backend: %w", err)
	}

	client, err := completion.NewClient(completion.Config{
		Provider: cfg.Completion.Provider,
		APIKey:   cfg.Completion.APIKey,
		BaseURL:  cfg.Completion.BaseURL,
		Model:    cfg.Completion.Model,
		Timeout:  cfg.CompletionTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	retriever := retrieval.NewRetriever(cached, searcher, cfg)
	return &services{
		retriever: retriever,
		client:    client,
		service:   classify.NewService(retriever, client),
	}, nil
}

// readPrompt resolves a prompt argument: a path to an existing file is read,
// anything else is treated as literal template text.
func readPrompt(arg string) (string, error) {
	if arg == "" {
		return "", fmt.Errorf("prompt is required")
	}
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return string(data), nil
	}
	return arg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "soccode.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(adjudicateCmd)
	rootCmd.AddCommand(indexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
