// Package handlers implements the governance HTTP API.
//
// Handlers translate HTTP into engine calls and back. Routes are registered by
// the composition root; request shape is enforced by the OpenAPI validator
// before a handler runs, and failures are attached with c.Error for
// middleware.ErrorHandler to render.
package handlers

import (
	"context"

	"bizcore.io/governance/internal/governance/audit"
	"bizcore.io/governance/internal/governance/lifecycle"
	"bizcore.io/governance/internal/governance/numbering"
	"bizcore.io/governance/internal/pkg/worker"
	"bizcore.io/governance/internal/usecase"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies shared by all handlers.
type Server struct {
	registry  *lifecycle.Registry
	executor  *lifecycle.Executor
	trail     *audit.Trail
	numbering *numbering.Engine
	batch     *usecase.BatchNumberAssigner
	pinger    Pinger
	pools     []*worker.Pool
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Registry  *lifecycle.Registry
	Executor  *lifecycle.Executor
	Trail     *audit.Trail
	Numbering *numbering.Engine
	Batch     *usecase.BatchNumberAssigner
	// Pinger is optional; without it readiness always reports ok.
	Pinger Pinger
	// Pools are reported by the readiness probe.
	Pools []*worker.Pool
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		registry:  deps.Registry,
		executor:  deps.Executor,
		trail:     deps.Trail,
		numbering: deps.Numbering,
		batch:     deps.Batch,
		pinger:    deps.Pinger,
		pools:     deps.Pools,
	}
}
