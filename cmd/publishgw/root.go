package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eduba/publishgw/internal/config"
)

type globalOptions struct {
	configPath string
	envDir     string
}

// newRootCmd creates the root publishgw command with all subcommands attached.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "publishgw",
		Short:         "HTTP gateway for the publishing agent",
		Long:          "publishgw accepts site submissions, stages uploads and runs the\npublishing agent once per request.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("publishgw {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (env "+config.EnvConfig+")")
	cmd.PersistentFlags().StringVar(&opts.envDir, "env-dir", ".", "Directory searched for .env.local and .env")

	cmd.AddCommand(
		newServeCmd(opts),
		newConfigCmd(opts),
		newInvocationsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// resolveConfigPath picks --config, then the environment.
func (o *globalOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return strings.TrimSpace(os.Getenv(config.EnvConfig))
}

// loadConfig loads dotenv files and then the configuration.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(o.envDir); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "publishgw %s\ncommit: %s\nbuilt: %s\n", version, gitCommit, buildDate)
			return nil
		},
	}
}
