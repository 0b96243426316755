package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolcat/visimatch/infrastructure/transport"
	"github.com/toolcat/visimatch/internal/config"
)

func tokenCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "token <api-key>",
		Short: "Issue a bearer token for the admin HTTP surface, signed with the given API key",
		Long: `Mints a JWT bearer token scoped to the admin HTTP surface's audience,
signed with the given API key. The key must be one of the values returned
by the running server's API_KEYS configuration; token issuance never
contacts the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(envFile, args[0])
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "path to .env file (default: .env in working directory)")

	return cmd
}

func runToken(envFile, apiKey string) error {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	found := false
	for _, k := range cfg.APIKeys() {
		if k == apiKey {
			found = true
			break
		}
	}
	if !found {
		cliLogger.Warn().Msg("given key is not among the loaded API_KEYS; the resulting token will only verify against a server configured with the same key")
	}

	tok, err := transport.IssueAdminToken(apiKey)
	if err != nil {
		return fmt.Errorf("issue admin token: %w", err)
	}

	fmt.Println(tok)
	return nil
}
