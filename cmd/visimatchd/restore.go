package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/toolcat/visimatch/internal/config"
	"github.com/toolcat/visimatch/internal/log"
)

func restoreCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "restore <version>",
		Short: "Restore a prior model backup, snapshotting the current one first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(envFile, args[0])
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "path to .env file (default: .env in working directory)")

	return cmd
}

func runRestore(envFile, version string) error {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slogger := log.NewLogger(cfg).Slog()
	client, err := buildOfflineClient(cfg, slogger, "")
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	cliLogger.Info().Str("version", version).Msg("backing up active model before restore")
	if _, err := client.Trainer.Backup(ctx, feedback.BackupOriginPreTraining); err != nil {
		return fmt.Errorf("backup active model: %w", err)
	}

	if err := client.Trainer.RestoreBackup(ctx, version); err != nil {
		return fmt.Errorf("restore backup %s: %w", version, err)
	}

	count, err := client.Trainer.ReembedSweep(ctx)
	if err != nil {
		return fmt.Errorf("re-embed catalog after restore: %w", err)
	}

	cliLogger.Info().Str("version", version).Int("reembedded", count).Msg("restore complete")
	return nil
}
