// Package cli implements govctl, the operator command line of the governance
// service.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"bizcore.io/governance/internal/app/modules"
	"bizcore.io/governance/internal/config"
	"bizcore.io/governance/internal/pkg/logger"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Env is the set of engines a command works with.
type Env struct {
	Infra     *modules.Infrastructure
	Lifecycle *modules.LifecycleModule
	Numbering *modules.NumberingModule
}

// Close releases the environment.
func (e *Env) Close() {
	if e.Numbering != nil {
		_ = e.Numbering.Shutdown(context.Background())
	}
	e.Infra.Close()
}

// Opener builds an Env from configuration.
type Opener func(ctx context.Context, cfg *config.Config) (*Env, error)

// RootOptions holds global flags and the collaborators shared by all commands.
type RootOptions struct {
	Format  string // "json" | "text"
	Verbose bool

	// LoadConfig and Open are replaced in tests.
	LoadConfig func() (*config.Config, error)
	Open       Opener
}

// OpenEnv wires the configured store and engines.
func OpenEnv(ctx context.Context, cfg *config.Config) (*Env, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, err
	}
	num, err := modules.NewNumberingModule(infra)
	if err != nil {
		infra.Close()
		return nil, err
	}
	return &Env{Infra: infra, Lifecycle: modules.NewLifecycleModule(infra), Numbering: num}, nil
}

// NewRootCommand creates the root command for govctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.Load, Open: OpenEnv})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "govctl",
		Short: "Operate the governance service",
		Long: `govctl manages lifecycle rules, numbering rules and the database schema
of the governance service. It reads the same configuration as the server
(config.yaml and environment variables).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			if err := logger.Init(level, "console"); err != nil {
				return err
			}
			return logger.SetLevel(level)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewNumberCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// withEnv loads configuration, opens the environment and runs fn.
func (o *RootOptions) withEnv(ctx context.Context, fn func(*Env) error) error {
	cfg, err := o.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	env, err := o.Open(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer env.Close()
	return fn(env)
}
