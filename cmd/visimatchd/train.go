package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/toolcat/visimatch"
	"github.com/toolcat/visimatch/internal/config"
	"github.com/toolcat/visimatch/internal/log"
)

func trainCmd() *cobra.Command {
	var (
		envFile        string
		hyperparamFile string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one fine-tuning session against the current feedback backlog",
		Long: `Run a single fine-tuning session synchronously: back up the active
model, prepare contrastive pairs from unconsumed feedback, fine-tune, and
promote the result if it beats the current model's validation accuracy.
Exits non-zero if the Trainer returns InsufficientData or any other error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(envFile, hyperparamFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "path to .env file (default: .env in working directory)")
	cmd.Flags().StringVar(&hyperparamFile, "hyperparams-file", "", "optional YAML file of training hyperparameter overrides")

	return cmd
}

func runTrain(envFile, hyperparamFile string) error {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.NewLogger(cfg)
	slogger := logger.Slog()

	client, err := buildOfflineClient(cfg, slogger, hyperparamFile)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	cliLogger.Info().Msg("starting fine-tuning session")
	result, err := client.Trainer.FineTune(ctx)
	if err != nil {
		return fmt.Errorf("fine-tune: %w", err)
	}

	cliLogger.Info().
		Bool("success", result.Success).
		Str("version", result.Version).
		Float64("accuracy_before", result.AccuracyBefore).
		Float64("accuracy_after", result.AccuracyAfter).
		Int("num_examples", result.NumExamples).
		Dur("duration", result.Duration).
		Msg("fine-tuning session complete")

	if result.AccuracyAfter <= result.AccuracyBefore {
		cliLogger.Info().Msg("validation accuracy did not improve; new model not promoted")
		return nil
	}
	if err := client.Trainer.Promote(ctx, result.Version); err != nil {
		return fmt.Errorf("promote %s: %w", result.Version, err)
	}
	count, err := client.Trainer.ReembedSweep(ctx)
	if err != nil {
		return fmt.Errorf("re-embed catalog after promotion: %w", err)
	}
	cliLogger.Info().Str("version", result.Version).Int("reembedded", count).Msg("promoted fine-tuned model")

	return nil
}

// buildOfflineClient constructs a visimatch.Client for a one-shot CLI
// command (train/backup/restore): no admin HTTP surface, worker started
// as usual since handler registration and validation happen in New.
func buildOfflineClient(cfg config.AppConfig, slogger *slog.Logger, hyperparamFile string) (*visimatch.Client, error) {
	opts := []visimatch.Option{
		visimatch.WithDataDir(cfg.DataDir()),
		visimatch.WithLogger(slogger),
		visimatch.WithHyperparametersFile(hyperparamFile),
	}
	if dbURL := cfg.DBURL(); dbURL != "" && !isSQLiteURL(dbURL) {
		opts = append(opts, visimatch.WithPostgres(dbURL))
	} else {
		dbPath := cfg.DataDir() + "/visimatch.db"
		opts = append(opts, visimatch.WithSQLite(dbPath))
	}

	client, err := visimatch.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create visimatch client: %w", err)
	}
	return client, nil
}
