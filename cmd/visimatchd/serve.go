package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolcat/visimatch"
	"github.com/toolcat/visimatch/infrastructure/transport"
	"github.com/toolcat/visimatch/internal/config"
	"github.com/toolcat/visimatch/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		envFile        string
		host           string
		port           int
		noAdmin        bool
		corsOrigins    string
		hyperparamFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the background worker and (optionally) the admin HTTP surface",
		Long: `Start the background task worker and, unless --no-admin is set, a small
HTTP admin surface exposing queue/catalog stats, on-demand retraining, and
backup management, gated by a bearer token signed with one of the
configured API keys.

Configuration is loaded in this order (later overrides earlier):
  1. Default values
  2. .env file (if --env-file is given or .env exists in the working directory)
  3. Environment variables
  4. Command line flags

See internal/config for the full set of recognized environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveOptions{
				envFile:        envFile,
				host:           host,
				port:           port,
				noAdmin:        noAdmin,
				corsOrigins:    corsOrigins,
				hyperparamFile: hyperparamFile,
			})
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "path to .env file (default: .env in working directory)")
	cmd.Flags().StringVar(&host, "host", "", "admin HTTP bind host (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "admin HTTP bind port (default: 8080)")
	cmd.Flags().BoolVar(&noAdmin, "no-admin", false, "run the worker only, without the HTTP admin surface")
	cmd.Flags().StringVar(&corsOrigins, "cors-origins", "", "comma-separated allowed CORS origins for the admin surface")
	cmd.Flags().StringVar(&hyperparamFile, "hyperparams-file", "", "optional YAML file of training hyperparameter overrides")

	return cmd
}

type serveOptions struct {
	envFile        string
	host           string
	port           int
	noAdmin        bool
	corsOrigins    string
	hyperparamFile string
}

func runServe(o serveOptions) error {
	cfg, err := config.LoadConfig(o.envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var cfgOpts []config.AppConfigOption
	if o.host != "" {
		cfgOpts = append(cfgOpts, config.WithHost(o.host))
	}
	if o.port != 0 {
		cfgOpts = append(cfgOpts, config.WithPort(o.port))
	}
	cfg = cfg.Apply(cfgOpts...)

	logger := log.NewLogger(cfg)
	slogger := logger.Slog()

	cliLogger.Info().Str("version", version).Msg("starting visimatchd")
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting visimatchd", cfg.LogAttrs()...)

	opts := []visimatch.Option{
		visimatch.WithDataDir(cfg.DataDir()),
		visimatch.WithLogger(slogger),
		visimatch.WithAPIKeys(cfg.APIKeys()),
		visimatch.WithHyperparametersFile(o.hyperparamFile),
	}
	if cfg.WorkerCount() > 0 {
		opts = append(opts, visimatch.WithWorkerCount(cfg.WorkerCount()))
	}
	if dbURL := cfg.DBURL(); dbURL != "" && !isSQLiteURL(dbURL) {
		opts = append(opts, visimatch.WithPostgres(dbURL))
	} else {
		dbPath := cfg.DataDir() + "/visimatch.db"
		if dbURL != "" && isSQLiteURL(dbURL) {
			dbPath = strings.TrimPrefix(dbURL, "sqlite:///")
		}
		opts = append(opts, visimatch.WithSQLite(dbPath))
	}

	client, err := visimatch.New(opts...)
	if err != nil {
		return fmt.Errorf("create visimatch client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close visimatch client", slog.Any("error", err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if o.noAdmin {
		cliLogger.Info().Msg("admin HTTP surface disabled, running worker only")
		<-ctx.Done()
		cliLogger.Info().Msg("shutting down visimatchd")
		return nil
	}

	admin := transport.NewAdminServer(cfg.Addr(), client, cfg.APIKeys(), parseOrigins(o.corsOrigins), slogger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- admin.Start()
	}()

	cliLogger.Info().Str("addr", cfg.Addr()).Msg("admin HTTP surface listening")

	select {
	case <-ctx.Done():
		cliLogger.Info().Msg("shutting down visimatchd")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer shutdownCancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin server shutdown: %w", err)
		}
		return nil
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("admin server error: %w", err)
		}
		return nil
	}
}

func isSQLiteURL(url string) bool {
	return strings.HasPrefix(url, "sqlite:")
}

func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

const shutdownGracePeriod = 15 * time.Second
