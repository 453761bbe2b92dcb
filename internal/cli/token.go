package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xmhha/btcwatcher/internal/api"
)

// NewTokenCommand creates the token command, which issues a bearer token
// for the HTTP API signed with api_jwt_secret.
func NewTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			token, err := api.GenerateJWT(cfg.APIJWTSecret, subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
