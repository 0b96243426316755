package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/toolcat/visimatch/internal/config"
	"github.com/toolcat/visimatch/internal/log"
)

func backupCmd() *cobra.Command {
	var (
		envFile string
		list    bool
		cleanup int
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the active model, list backups, or prune old ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(envFile, list, cleanup)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "path to .env file (default: .env in working directory)")
	cmd.Flags().BoolVar(&list, "list", false, "list existing backups instead of creating one")
	cmd.Flags().IntVar(&cleanup, "cleanup", 0, "prune backups, keeping the N most recent (0 disables)")

	return cmd
}

func runBackup(envFile string, list bool, cleanup int) error {
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

	if list {
		backups, err := client.Trainer.ListBackups(ctx)
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}
		for _, b := range backups {
			cliLogger.Info().Str("version", b.ModelVersion).Time("created_at", b.CreatedAt).Msg("backup")
		}
		return nil
	}

	if cleanup > 0 {
		removed, err := client.Trainer.CleanupBackups(ctx, cleanup)
		if err != nil {
			return fmt.Errorf("cleanup backups: %w", err)
		}
		cliLogger.Info().Int("removed", removed).Int("keep", cleanup).Msg("pruned backups")
		return nil
	}

	art, err := client.Trainer.Backup(ctx, feedback.BackupOriginManual)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	cliLogger.Info().Str("version", art.Version).Str("path", art.Path).Msg("created backup")
	return nil
}
