package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bizcore.io/governance/internal/infrastructure"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate up|down",
		Short: "Apply or roll back the database schema",
		Long: `Apply (up) or roll back (down) the embedded SQL migrations against the
configured PostgreSQL database. Rolling back drops the audit trail and all
assigned numbers.

Examples:
  govctl migrate up
  DATABASE_URL=postgres://... govctl migrate down`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(infrastructure.MigrateUp), string(infrastructure.MigrateDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			db, err := infrastructure.NewDatabaseClients(cmd.Context(), cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to connect to database", err)
			}
			defer db.Close()

			direction := infrastructure.MigrateDirection(args[0])
			if err := infrastructure.Migrate(db.DB, direction); err != nil {
				return WrapExitError(ExitFailure, "migration failed", err)
			}
			p := printer{format: opts.Format, w: cmd.OutOrStdout()}
			return p.result(map[string]string{"status": "ok", "direction": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "migrations applied (%s)\n", args[0])
			})
		},
	}
}
