package cli

import (
	"github.com/spf13/cobra"

	"github.com/0xmhha/btcwatcher/internal/config"
	"github.com/0xmhha/btcwatcher/pkg/logger"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// configFile returns the --config value or the default location.
func (o *rootOptions) configFile() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultConfig().ConfigFile()
}

// loadConfig loads the configuration with cmd's flags applied on top.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(o.configFile(), cmd.Flags())
}

// NewRootCommand creates the root command for btcwatcher
func NewRootCommand(logger *logger.Logger) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "btcwatcher",
		Short: "Bitcoin chain and fee watcher",
		Long: `btcwatcher polls a Bitcoin node for chain state and block statistics and a
fee estimation service for fee rates, and fans the results out to its consumers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default $BTCWATCHER_HOME/config.toml)")
	cmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts, logger))
	cmd.AddCommand(NewInitCommand(opts, logger))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
