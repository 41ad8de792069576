package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammPool/internal/config"
	"ammPool/internal/replay"
	"ammPool/internal/storage"
)

func replayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply a JSONL script of operations to the pool",
		Args:  cobra.NoArgs,
		RunE:  runReplay,
	}

	addPoolFlags(cmd.Flags())
	cmd.Flags().String("in", "", "input operations JSONL")
	cmd.Flags().Uint64("batch-size", 100, "operations per batch")
	cmd.Flags().String("checkpoint", "./data/replay_checkpoint.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().Bool("stop-on-error", false, "stop at the first rejected operation")
	cmd.Flags().String("results", "./data/replay_results.jsonl", "operation results JSONL, empty to disable")

	return cmd
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	return withPool(cmd, openOrCreate, func(ctx context.Context, env *poolEnv) error {
		if env.created {
			if err := env.save(ctx); err != nil {
				return fmt.Errorf("save pool state: %w", err)
			}
		}

		var results replay.ResultSink
		if cfg.Results != "" {
			results = storage.NewJsonlResults(cfg.Results)
		}

		runner := replay.NewRunner(replay.RunConfig{
			ScriptPath:        cfg.In,
			BatchSize:         cfg.BatchSize,
			CheckpointPath:    cfg.Checkpoint,
			CheckpointEnabled: cfg.CheckpointEnabled,
			StopOnError:       cfg.StopOnError,
			MaxRetries:        cfg.MaxRetries,
			RetryBackoff:      cfg.RetryBackoff,
		}, env.pool, env.funder(), env.save, results, env.logger.Named("replay")).WithStep(env.apply)

		env.logger.Info("replay start",
			zap.String("in", cfg.In),
			zap.String("pool", env.pool.Address().Hex()),
			zap.Uint64("batch_size", cfg.BatchSize),
			zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
			zap.String("checkpoint", cfg.Checkpoint),
			zap.Bool("stop_on_error", cfg.StopOnError),
		)

		started := time.Now()
		summary, err := runner.Run(ctx)
		env.logger.Info("replay complete",
			zap.Uint64("lines", summary.Lines),
			zap.Uint64("applied", summary.Applied),
			zap.Uint64("rejected", summary.Rejected),
			zap.Uint64("nonce", summary.Nonce),
			zap.Duration("elapsed", time.Since(started)),
		)
		return err
	})
}
