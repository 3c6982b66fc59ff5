// Package cmd is the cards-oracle command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/timrodz/cards-oracle/features/job"
	"github.com/timrodz/cards-oracle/internal/app"
	"github.com/timrodz/cards-oracle/internal/config"
	"github.com/timrodz/cards-oracle/internal/logger"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	verbose bool

	cfg         *config.Config
	closeLogger func() error
)

var rootCmd = &cobra.Command{
	Use:   "cards-oracle",
	Short: "Semantic search and question answering over trading card data",
	Long: `cards-oracle embeds card records into a vector index and answers
questions about them with a language model grounded on the nearest cards.

Run "cards-oracle serve" for the HTTP API, or use the embed, ingest, index
and search commands directly.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		if verbose {
			level = slog.LevelDebug
		}
		var l *slog.Logger
		l, closeLogger = logger.New(level, cfg.LogFile)
		slog.SetDefault(l)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			_ = closeLogger()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
}

// environment is a bootstrapped application for one command invocation.
type environment struct {
	deps      *app.Dependencies
	app       *app.App
	providers io.Closer
}

func start(ctx context.Context, cfg *config.Config) (*environment, error) {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return nil, err
	}

	providers, closer, err := app.NewProviders(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}

	var pub job.EventPublisher
	if deps.NSQProducer != nil {
		pub = deps.NSQProducer
	}
	a, err := app.New(cfg, deps.DB, deps.VectorStore, pub, providers)
	if err != nil {
		closer.Close()
		deps.Close()
		return nil, err
	}
	return &environment{deps: deps, app: a, providers: closer}, nil
}

func (e *environment) Close() {
	e.app.Close()
	if err := e.providers.Close(); err != nil {
		slog.Warn("failed to close model client", "error", err)
	}
	e.deps.Close()
}
