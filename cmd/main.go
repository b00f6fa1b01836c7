package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgPkg "github.com/xhad/embedsync/pkg/config"
	"github.com/xhad/embedsync/pkg/llm"
	"github.com/xhad/embedsync/pkg/logging"
	"github.com/xhad/embedsync/pkg/pipeline"
	"github.com/xhad/embedsync/pkg/store"
)

var version = "dev"

type options struct {
	envPath    string
	configPath string
	progress   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "embedsync",
		Short: "Compute missing chunk embeddings and upload them",
		Long: `embedsync fetches every chunk without an embedding, embeds the chunks in
batches with a local or remote model, writes each vector back and marks the
affected documents as embedded.

The default model is intfloat/multilingual-e5-small served by a local
text-embeddings-inference server at http://localhost:8080/v1.

Examples:
  # Sync against the Supabase project configured in .env
  embedsync

  # Run an ONNX model in-process instead
  embedsync --provider fastembed --model BAAI/bge-small-en-v1.5`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.envPath, "env", ".env", "Path to the env file holding credentials")
	flags.StringVar(&opts.configPath, "config", "", "Path to the YAML tuning file")
	flags.String("backend", "", "Store backend (rest or postgres)")
	flags.String("provider", "", "Embedding provider (openai, fastembed or ollama)")
	flags.String("model", "", "Embedding model name")
	flags.Int("batch-size", 0, "Number of chunks per embedding call")
	flags.StringVar(&opts.progress, "progress", "bar", "Progress output (bar, log or none)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	return cmd
}

// flagOverrides copies the flags the user actually set onto the loaded config.
func flagOverrides(cmd *cobra.Command) func(*cfgPkg.Config) {
	flags := cmd.Flags()
	return func(c *cfgPkg.Config) {
		if flags.Changed("backend") {
			c.Store.Backend, _ = flags.GetString("backend")
		}
		if flags.Changed("provider") {
			c.Embedder.Provider, _ = flags.GetString("provider")
		}
		if flags.Changed("model") {
			c.Embedder.Model, _ = flags.GetString("model")
		}
		if flags.Changed("batch-size") {
			c.Embedder.BatchSize, _ = flags.GetInt("batch-size")
		}
		if flags.Changed("log-level") {
			c.Log.Level, _ = flags.GetString("log-level")
		}
	}
}

func run(cmd *cobra.Command, opts *options) error {
	mode, err := parseProgressMode(opts.progress)
	if err != nil {
		return err
	}

	config, err := cfgPkg.LoadConfig(opts.envPath, opts.configPath, flagOverrides(cmd))
	if err != nil {
		return err
	}

	logger, err := logging.New(config.Log.Level, config.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chunkStore, err := store.NewWithConfig(ctx, store.StoreConfig{
		Backend:        config.Store.Backend,
		URL:            config.Store.URL,
		APIKey:         config.Store.ServiceKey,
		DatabaseURL:    config.Store.DatabaseURL,
		ChunksTable:    config.Store.ChunksTable,
		DocumentsTable: config.Store.DocumentsTable,
		PageSize:       config.Store.PageSize,
		Timeout:        config.Store.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer chunkStore.Close()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  config.Embedder.Provider,
		Model:     config.Embedder.Model,
		BaseURL:   config.Embedder.BaseURL,
		APIKey:    config.Embedder.APIKey,
		CacheDir:  config.Embedder.CacheDir,
		MaxLength: config.Embedder.MaxLength,
		BatchSize: config.Embedder.BatchSize,
		Dimension: config.Embedder.Dimension,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer func() {
		if err := embedder.Close(); err != nil {
			logger.Warn("failed to release embedding model", zap.Error(err))
		}
	}()

	logger.Info("starting sync",
		zap.String("backend", config.Store.Backend),
		zap.String("provider", config.Embedder.Provider),
		zap.String("model", embedder.Model()),
		zap.Int("batch_size", embedder.BatchSize()),
	)

	reporter := newReporter(mode, cmd.ErrOrStderr())
	defer reporter.finish()

	p := pipeline.NewWithConfig(chunkStore, embedder, pipeline.Config{
		BatchSize:      config.Embedder.BatchSize,
		ReportInterval: config.Sync.ReportInterval,
		MaxAttempts:    config.Sync.MaxAttempts,
		RetryDelay:     config.Sync.RetryDelay,
		WriteRate:      config.Sync.WriteRate,
		Logger:         reporter.pipelineLogger(logger),
		OnProgress:     reporter.handle,
	})

	summary, err := p.Run(ctx)
	reporter.finish()
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("sync interrupted: %w", err)
		}
		return err
	}
	return nil
}

func printSummary(w io.Writer, summary *pipeline.Summary) {
	if summary.NothingToDo {
		color.New(color.FgYellow).Fprintln(w, "No chunks to embed.")
		return
	}

	ok := color.New(color.FgGreen)
	if !summary.Complete() {
		ok = color.New(color.FgYellow)
	}

	ok.Fprintf(w, "Done: %d/%d embeddings uploaded\n", summary.Embedded, summary.Fetched)
	if len(summary.FailedChunks) > 0 {
		color.New(color.FgRed).Fprintf(w, "  failed chunks: %s\n", strings.Join(summary.FailedChunks, ", "))
	}

	ok.Fprintf(w, "Updated %d/%d documents to 'embedded' status\n", summary.DocumentsUpdated, summary.Documents)
	if len(summary.FailedDocuments) > 0 {
		color.New(color.FgRed).Fprintf(w, "  failed documents: %s\n", strings.Join(summary.FailedDocuments, ", "))
	}

	color.New(color.FgCyan).Fprintf(w, "Finished in %s\n", summary.Elapsed.Round(time.Millisecond))
}

func reportError(w io.Writer, err error) {
	red := color.New(color.FgRed)

	var invalid cfgPkg.ValidationErrors
	if errors.As(err, &invalid) {
		if missing := invalid.Missing(); len(missing) > 0 {
			red.Fprintf(w, "Missing required configuration: %s\n", strings.Join(missing, ", "))
		}
		for _, e := range invalid {
			if !e.IsMissing() {
				red.Fprintf(w, "Invalid configuration: %s\n", e.Error())
			}
		}
		return
	}

	red.Fprintf(w, "Error: %v\n", err)
}
