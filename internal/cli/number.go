package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/governance/numbering"
	apperrors "bizcore.io/governance/internal/pkg/errors"
)

// NewNumberCommand creates the number command group.
func NewNumberCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "number",
		Short: "Inspect numbering rules and assigned numbers",
	}
	cmd.AddCommand(newNumberShowCommand(opts))
	cmd.AddCommand(newNumberRulesCommand(opts))
	return cmd
}

func newNumberShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity_type> <entity_id>",
		Short: "Show the number assigned to a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd.Context(), func(env *Env) error {
				n, err := env.Numbering.Engine.GetAssignment(cmd.Context(), args[0], args[1])
				if errors.Is(err, apperrors.ErrNotFound) {
					return WrapExitError(ExitFailure, fmt.Sprintf("no number assigned to %s/%s", args[0], args[1]), err)
				}
				if err != nil {
					return WrapExitError(ExitFailure, "lookup failed", err)
				}
				p := printer{format: opts.Format, w: cmd.OutOrStdout()}
				return p.result(n, func(w io.Writer) {
					fmt.Fprintf(w, "%s  (assigned %s by %s)\n",
						n.Number, n.AssignedAt.UTC().Format(time.RFC3339), n.AssignedBy)
				})
			})
		},
	}
}

func newNumberRulesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List numbering rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd.Context(), func(env *Env) error {
				rules, err := env.Numbering.Engine.ListRules(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "list failed", err)
				}
				if rules == nil {
					rules = []domain.NumberingRule{}
				}
				p := printer{format: opts.Format, w: cmd.OutOrStdout()}
				return p.result(rules, func(w io.Writer) {
					for _, r := range rules {
						state := "enabled"
						if !r.Enabled {
							state = "disabled"
						}
						fmt.Fprintf(w, "%-16s %-8s reset=%-8s %s\n", r.EntityType, state, r.Reset, describeRule(r))
					}
				})
			})
		},
	}
}

// describeRule renders the first number of the current period as a sample.
func describeRule(r domain.NumberingRule) string {
	return "e.g. " + numbering.Format(r, 1, time.Now())
}
