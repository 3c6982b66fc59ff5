package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timrodz/cards-oracle/internal/config"
	"github.com/timrodz/cards-oracle/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. With JOB_DISPATCHER=nsq and ENABLE_JOB_WORKER=true
the process also consumes embedding jobs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return Serve(ctx, cfg)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume embedding jobs from NSQ",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JobDispatcher != config.DispatcherNSQ {
			return errors.New("worker requires JOB_DISPATCHER=nsq")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := start(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		consumer, err := startConsumer(cfg, env)
		if err != nil {
			return err
		}
		defer consumer.Stop()

		<-ctx.Done()
		slog.Info("worker shutting down")
		return nil
	},
}

// Serve runs the configured API and job worker until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config) error {
	env, err := start(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	if cfg.JobDispatcher == config.DispatcherNSQ && cfg.EnableJobWorker {
		consumer, err := startConsumer(cfg, env)
		if err != nil {
			return err
		}
		defer consumer.Stop()
	}

	if !cfg.EnableAPI {
		slog.Info("API disabled, waiting for shutdown")
		<-ctx.Done()
		return nil
	}
	return env.app.Run(ctx)
}

func startConsumer(cfg *config.Config, env *environment) (*worker.Consumer, error) {
	consumer, err := worker.NewConsumer(
		config.TopicEmbeddingJobs,
		config.ChannelEmbeddingWorkers,
		worker.NewJobConsumer(env.app.Jobs),
		cfg.JobWorkers,
		cfg.JobMaxAttempts,
	)
	if err != nil {
		return nil, err
	}
	if cfg.NSQLookupd != "" {
		err = consumer.ConnectLookupd(cfg.NSQLookupd)
	} else {
		err = consumer.Connect(cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, err
	}
	slog.Info("job worker started", "topic", config.TopicEmbeddingJobs, "concurrency", cfg.JobWorkers)
	return consumer, nil
}
