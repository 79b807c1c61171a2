package modules

import (
	"context"
	"fmt"
	"time"

	"bizcore.io/governance/internal/api/handlers"
	"bizcore.io/governance/internal/governance/numbering"
	"bizcore.io/governance/internal/pkg/logger"
	"bizcore.io/governance/internal/pkg/worker"
	"bizcore.io/governance/internal/usecase"
)

const defaultPoolDrain = 10 * time.Second

// NumberingModule owns the numbering engine and the batch worker pool.
type NumberingModule struct {
	Engine *numbering.Engine
	Batch  *usecase.BatchNumberAssigner

	pool *worker.Pool
}

func NewNumberingModule(infra *Infrastructure) (*NumberingModule, error) {
	cfg := infra.Config.Worker
	pool, err := worker.NewPool("numbering-batch", cfg.BatchPoolSize)
	if err != nil {
		return nil, fmt.Errorf("create batch pool: %w", err)
	}

	engine := numbering.NewEngine(infra.Store,
		numbering.WithLocation(infra.Location),
		numbering.WithLogger(logger.Named("numbering")),
		numbering.WithMetrics(infra.Metrics),
	)
	return &NumberingModule{
		Engine: engine,
		Batch:  usecase.NewBatchNumberAssigner(engine, pool, cfg.MaxBatchSize, logger.Named("batch")),
		pool:   pool,
	}, nil
}

func (m *NumberingModule) Name() string { return "numbering" }

func (m *NumberingModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Numbering = m.Engine
	deps.Batch = m.Batch
	deps.Pools = append(deps.Pools, m.pool)
}

// Shutdown waits for running batch items up to ctx's deadline.
func (m *NumberingModule) Shutdown(ctx context.Context) error {
	timeout := defaultPoolDrain
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	m.pool.Shutdown(timeout)
	return nil
}
