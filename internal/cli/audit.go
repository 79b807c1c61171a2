package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"bizcore.io/governance/internal/domain"
)

// AuditQueryOptions holds flags for audit query.
type AuditQueryOptions struct {
	*RootOptions
	EntityType  string
	PrincipalID string
	Since       time.Duration
	Limit       int
}

// NewAuditCommand creates the audit command group.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the transition audit trail",
	}
	cmd.AddCommand(newAuditHistoryCommand(opts))
	cmd.AddCommand(newAuditQueryCommand(opts))
	return cmd
}

func newAuditHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <entity_type> <entity_id>",
		Short: "Show every transition of one record, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd.Context(), func(env *Env) error {
				entries, err := env.Lifecycle.Trail.History(cmd.Context(), args[0], args[1])
				if err != nil {
					return WrapExitError(ExitFailure, "history failed", err)
				}
				return printEntries(printer{format: opts.Format, w: cmd.OutOrStdout()}, entries)
			})
		},
	}
}

func newAuditQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditQueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search transitions across records",
		Long: `Search the audit trail by entity type, principal and age.

Examples:
  govctl audit query --entity-type order --since 24h
  govctl audit query --principal u-42 --limit 20 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := domain.AuditFilter{
				EntityType:  opts.EntityType,
				PrincipalID: opts.PrincipalID,
				Limit:       opts.Limit,
			}
			if opts.Since > 0 {
				f.Since = time.Now().Add(-opts.Since)
			}
			return opts.withEnv(cmd.Context(), func(env *Env) error {
				entries, err := env.Lifecycle.Trail.Query(cmd.Context(), f)
				if err != nil {
					return WrapExitError(ExitFailure, "query failed", err)
				}
				return printEntries(printer{format: opts.Format, w: cmd.OutOrStdout()}, entries)
			})
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "filter by entity type")
	cmd.Flags().StringVar(&opts.PrincipalID, "principal", "", "filter by acting principal")
	cmd.Flags().DurationVar(&opts.Since, "since", 0, "only entries newer than this age, e.g. 24h")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum number of entries")
	return cmd
}

func printEntries(p printer, entries []domain.TransitionAuditEntry) error {
	if entries == nil {
		entries = []domain.TransitionAuditEntry{}
	}
	return p.result(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "no transitions recorded")
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s  %s/%s  %s -> %s  by %s",
				e.OccurredAt.UTC().Format(time.RFC3339), e.EntityType, e.EntityID, e.FromState, e.ToState, e.PrincipalID)
			if e.IsOverride {
				fmt.Fprint(w, "  [override]")
			}
			if e.Reason != "" {
				fmt.Fprintf(w, "  reason: %q", e.Reason)
			}
			fmt.Fprintln(w)
		}
	})
}
