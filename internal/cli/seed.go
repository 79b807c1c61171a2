package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bizcore.io/governance/internal/governance/catalog"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	CatalogPath string
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register lifecycle and numbering rules from a catalog",
		Long: `Register the states, transitions and numbering rules of a YAML catalog.
Without --catalog the built-in numbering rules are registered. Registration
is an upsert: existing rules are updated and reactivated, counters are kept.

Examples:
  govctl seed
  govctl seed --catalog ./catalog.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.Default()
			if opts.CatalogPath != "" {
				loaded, err := catalog.LoadFile(opts.CatalogPath)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load catalog", err)
				}
				cat = loaded
			}

			return opts.withEnv(cmd.Context(), func(env *Env) error {
				summary, err := cat.Apply(cmd.Context(), env.Lifecycle.Registry, env.Numbering.Engine)
				if err != nil {
					return WrapExitError(ExitFailure, "seed failed", err)
				}
				p := printer{format: opts.Format, w: cmd.OutOrStdout()}
				return p.result(summary, func(w io.Writer) {
					fmt.Fprintf(w, "registered %d states, %d transitions, %d numbering rules\n",
						summary.States, summary.Transitions, summary.NumberingRules)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.CatalogPath, "catalog", "", "path to a YAML catalog (default: built-in numbering rules)")
	return cmd
}
