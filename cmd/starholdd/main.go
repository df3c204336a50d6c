package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/starhold/server/internal/command"
	"github.com/starhold/server/internal/config"
	"github.com/starhold/server/internal/daemon"
	"github.com/starhold/server/internal/logger"
)

var version = "dev"

const tokenTTL = time.Hour

func main() {
	root := &cobra.Command{
		Use:   "starholdd",
		Short: "starhold — authoritative 2-D space server",
	}

	root.AddCommand(serveCmd(), versionCmd(), issueServiceTokenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			mgr, err := config.NewManager(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg := mgr.Get()

			if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			stop := make(chan struct{})
			if err := mgr.Watch(stop); err != nil {
				return fmt.Errorf("watch config: %w", err)
			}

			d, err := daemon.New(cfg)
			if err != nil {
				return fmt.Errorf("build daemon: %w", err)
			}
			defer d.Close()

			return d.Run(stop)
		},
	}
	cmd.Flags().String("config", "", "path to a YAML config file (defaults baked in if omitted)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

// issueServiceTokenCmd mints a JWT for the admin/ops surface (SPEC_FULL.md
// §4.11), since that surface has no interactive login flow of its own.
func issueServiceTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue-service-token [subject]",
		Short: "Mint a JWT for the admin/ops command surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			mgr, err := config.NewManager(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg := mgr.Get()
			if cfg.ServiceAuthSecret == "" {
				return fmt.Errorf("service_auth_secret is not configured")
			}

			auth := command.NewServiceAuth(cfg.ServiceAuthSecret, tokenTTL)
			token, err := auth.IssueToken(args[0])
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("config", "", "path to a YAML config file")
	return cmd
}
