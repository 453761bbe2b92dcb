package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/config"
	"github.com/0xmhha/btcwatcher/pkg/logger"
)

// NewInitCommand creates the init command, which writes a default config
// file.
func NewInitCommand(opts *rootOptions, logger *logger.Logger) *cobra.Command {
	var (
		format string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write a config file populated with the default settings. The format is taken
from --format, or from the extension of --config when given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := initPath(opts, format)
			if err != nil {
				return err
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}

			if err := config.WriteFile(path, config.DefaultConfig()); err != nil {
				return err
			}

			logger.Info("wrote config file", zap.String("path", path))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Config format: toml or yaml")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// initPath resolves the file to write. An explicit --config wins; its
// extension must agree with --format when both are given.
func initPath(opts *rootOptions, format string) (string, error) {
	format = strings.ToLower(format)
	switch format {
	case "", "toml", "yaml", "yml":
	default:
		return "", fmt.Errorf("unsupported config format: %s", format)
	}

	if opts.configPath != "" {
		if format != "" {
			got, err := config.FormatFromPath(opts.configPath)
			if err != nil {
				return "", err
			}
			if got != normalizeFormat(format) {
				return "", fmt.Errorf("--format %s does not match %s", format, opts.configPath)
			}
		}
		return opts.configPath, nil
	}

	path := opts.configFile()
	if normalizeFormat(format) == "yaml" {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ".yaml"
	}
	return path, nil
}

func normalizeFormat(format string) string {
	if format == "yml" {
		return "yaml"
	}
	return format
}
