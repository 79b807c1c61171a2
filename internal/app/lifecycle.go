package app

import (
	"context"

	"go.uber.org/zap"

	"bizcore.io/governance/internal/pkg/logger"
)

// Shutdown gracefully shuts down all application components. Batch items
// still running get until ctx's deadline to finish.
func (a *Application) Shutdown(ctx context.Context) {
	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(ctx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	if a.Infra != nil {
		a.Infra.Close()
	}
	logger.Info("application stopped")
}
