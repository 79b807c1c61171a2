package modules

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bizcore.io/governance/internal/config"
	"bizcore.io/governance/internal/infrastructure"
	"bizcore.io/governance/internal/pkg/logger"
	"bizcore.io/governance/internal/pkg/telemetry"
	"bizcore.io/governance/internal/repository"
	"bizcore.io/governance/internal/repository/memory"
	"bizcore.io/governance/internal/repository/postgres"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config    *config.Config
	DB        *infrastructure.DatabaseClients // nil for the memory backend
	Store     repository.Store
	Telemetry *telemetry.Providers
	Metrics   *telemetry.Metrics
	Location  *time.Location
}

// NewInfrastructure opens the configured store and telemetry providers.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	loc, err := cfg.Numbering.Location()
	if err != nil {
		return nil, err
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	metrics, err := telemetry.NewMetrics(providers.Meter())
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	infra := &Infrastructure{
		Config:    cfg,
		Telemetry: providers,
		Metrics:   metrics,
		Location:  loc,
	}

	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("init database: %w", err)
		}
		infra.DB = db

		if cfg.Database.AutoMigrate {
			if err := infrastructure.Migrate(db.DB, infrastructure.MigrateUp); err != nil {
				infra.Close()
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
		}
		infra.Store = postgres.NewStore(db.Pool,
			postgres.WithTracer(providers.Tracer()),
			postgres.WithLockTimeout(cfg.Numbering.LockTimeout),
		)
	default:
		logger.Warn("using in-memory store; rules, audit entries and numbers are lost on restart")
		infra.Store = memory.New(memory.WithLockTimeout(cfg.Numbering.LockTimeout))
	}

	logger.Info("store initialized",
		zap.String("backend", cfg.Store.Backend),
		zap.String("numbering_timezone", loc.String()),
	)
	return infra, nil
}

// Ping checks the database; the memory backend is always reachable.
func (i *Infrastructure) Ping(ctx context.Context) error {
	if i == nil || i.DB == nil {
		return nil
	}
	return i.DB.Pool.Ping(ctx)
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.DB != nil {
		i.DB.Close()
	}
	if i.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := i.Telemetry.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown returned error", zap.Error(err))
		}
	}
}
