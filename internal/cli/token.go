package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"bizcore.io/governance/internal/api/middleware"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Subject     string
	Permissions []string
	TTL         time.Duration
}

type tokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token with the configured key",
		Long: `Sign a bearer token for local testing and automation. Production
callers receive tokens from the identity service.

Examples:
  govctl token --subject ops-bot --permission governance.admin
  govctl token --subject u-42 --permission order.approve --ttl 15m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.TTL <= 0 {
				return &ExitError{Code: ExitCommandError, Message: "--ttl must be positive"}
			}
			cfg, err := opts.LoadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			jwtCfg := middleware.JWTConfig{
				SigningKey: []byte(cfg.Security.JWTSigningKey),
				Issuer:     cfg.Security.JWTIssuer,
				ExpiresIn:  opts.TTL,
			}
			token, expiresAt, err := middleware.GenerateToken(jwtCfg, opts.Subject, opts.Permissions)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to sign token", err)
			}

			p := printer{format: opts.Format, w: cmd.OutOrStdout()}
			return p.result(tokenResult{Token: token, ExpiresAt: expiresAt}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "principal id carried in the sub claim")
	cmd.Flags().StringSliceVar(&opts.Permissions, "permission", nil, "permission to grant (repeatable)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
