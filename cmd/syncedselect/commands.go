package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/synced-select/internal/api"
	"github.com/nerrad567/synced-select/internal/infrastructure/config"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// CLI names.
const (
	cmdServe   = "serve"
	cmdToken   = "token"
	cmdVersion = "version"

	flagConfig  = "config"
	flagSubject = "subject"
	flagTTL     = "ttl"
)

// newRootCmd builds the command tree. Running the root command is the same
// as running "serve".
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "syncedselect",
		Short: "Synced Select - one select entity driving many",
		Long: `Synced Select groups Home Assistant select entities behind a single proxy
select entity. The proxy offers the options all sources have in common;
choosing one sends it to every source.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPathFlag(cmd))
		},
	}
	root.PersistentFlags().String(flagConfig, "", "config file (default $SYNCEDSELECT_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(newServeCmd(), newTokenCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   cmdServe,
		Short: "Run the service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPathFlag(cmd))
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   cmdToken,
		Short: "Mint an API bearer token from the configured JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPathFlag(cmd))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			subject, _ := cmd.Flags().GetString(flagSubject) //nolint:errcheck // flag is registered below
			ttl, _ := cmd.Flags().GetDuration(flagTTL)       //nolint:errcheck // flag is registered below
			if !cmd.Flags().Changed(flagTTL) {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}

			token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String(flagSubject, "admin", "token subject")
	cmd.Flags().Duration(flagTTL, 0, "token lifetime (default security.jwt.access_token_ttl; 0 never expires)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   cmdVersion,
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "syncedselect %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// configPathFlag resolves the config file path: --config, then
// SYNCEDSELECT_CONFIG, then the default.
func configPathFlag(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString(flagConfig); path != "" { //nolint:errcheck // persistent flag always registered
		return path
	}
	return getConfigPath()
}

// getConfigPath returns the configuration file path.
// Uses SYNCEDSELECT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SYNCEDSELECT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
