package modules

import (
	"context"

	"bizcore.io/governance/internal/api/handlers"
	"bizcore.io/governance/internal/governance/audit"
	"bizcore.io/governance/internal/governance/lifecycle"
	"bizcore.io/governance/internal/pkg/logger"
)

// LifecycleModule owns the state machine registry, executor and audit trail.
type LifecycleModule struct {
	Registry *lifecycle.Registry
	Executor *lifecycle.Executor
	Trail    *audit.Trail
}

func NewLifecycleModule(infra *Infrastructure) *LifecycleModule {
	opts := []lifecycle.Option{
		lifecycle.WithLogger(logger.Named("lifecycle")),
		lifecycle.WithMetrics(infra.Metrics),
	}
	return &LifecycleModule{
		Registry: lifecycle.NewRegistry(infra.Store, opts...),
		Executor: lifecycle.NewExecutor(infra.Store, opts...),
		Trail:    audit.NewTrail(infra.Store),
	}
}

func (m *LifecycleModule) Name() string { return "lifecycle" }

func (m *LifecycleModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Registry = m.Registry
	deps.Executor = m.Executor
	deps.Trail = m.Trail
}

func (m *LifecycleModule) Shutdown(context.Context) error { return nil }
