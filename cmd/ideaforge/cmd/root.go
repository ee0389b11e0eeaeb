// Package cmd implements the ideaforge command line interface.
package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/ideaforge-dev/ideaforge"
	"github.com/ideaforge-dev/ideaforge/pkg/config"
)

var (
	cfgFile string

	appVersion string
	appCommit  string
)

var rootCmd = &cobra.Command{
	Use:   "ideaforge",
	Short: "Conversational workflow engine that turns an idea into a PRD",
	Long: `ideaforge walks a product idea through a staged conversation:
brainstorm, summary, and PRD drafting, with an optional market research
branch. Each stage is driven by a configurable model provider.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion records build metadata for the version command.
func SetVersion(version, commit string) {
	appVersion = version
	appCommit = commit
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; defaults to environment-only config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ideaforge %s (%s)\n", appVersion, appCommit)
		},
	})
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openApp wires the full stack and returns a cleanup function.
func openApp(ctx context.Context, cfg *config.Config) (*ideaforge.App, func(), error) {
	app, err := ideaforge.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := app.Close(context.Background()); err != nil {
			log.Printf("warning: shutdown: %v", err)
		}
	}
	return app, cleanup, nil
}
