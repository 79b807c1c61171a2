// Package app is the composition root: it wires configuration, store,
// engines and the HTTP router. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bizcore.io/governance/internal/api/handlers"
	"bizcore.io/governance/internal/api/middleware"
	"bizcore.io/governance/internal/app/modules"
	"bizcore.io/governance/internal/config"
	"bizcore.io/governance/internal/governance/catalog"
	"bizcore.io/governance/internal/pkg/logger"
)

// Application holds composed application dependencies.
type Application struct {
	Config    *config.Config
	Router    *gin.Engine
	Infra     *modules.Infrastructure
	Lifecycle *modules.LifecycleModule
	Numbering *modules.NumberingModule
	Modules   []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	lifecycleModule := modules.NewLifecycleModule(infra)
	numberingModule, err := modules.NewNumberingModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init numbering module: %w", err)
	}
	allModules := []modules.Module{lifecycleModule, numberingModule}

	if cfg.Catalog.SeedOnStart {
		if err := seedCatalog(ctx, cfg.Catalog.Path, lifecycleModule, numberingModule); err != nil {
			_ = numberingModule.Shutdown(ctx)
			infra.Close()
			return nil, err
		}
	}

	server := handlers.NewServer(modules.NewServerDeps(infra, allModules))
	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
	}
	router, err := newRouter(cfg, server, jwtCfg)
	if err != nil {
		_ = numberingModule.Shutdown(ctx)
		infra.Close()
		return nil, fmt.Errorf("init router: %w", err)
	}

	return &Application{
		Config:    cfg,
		Router:    router,
		Infra:     infra,
		Lifecycle: lifecycleModule,
		Numbering: numberingModule,
		Modules:   allModules,
	}, nil
}

// seedCatalog applies the catalog at path, or the built-in defaults.
func seedCatalog(ctx context.Context, path string, lc *modules.LifecycleModule, num *modules.NumberingModule) error {
	cat := catalog.Default()
	if path != "" {
		loaded, err := catalog.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		cat = loaded
	}
	summary, err := cat.Apply(ctx, lc.Registry, num.Engine)
	if err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	logger.Info("catalog seeded",
		zap.String("path", path),
		zap.Int("states", summary.States),
		zap.Int("transitions", summary.Transitions),
		zap.Int("numbering_rules", summary.NumberingRules),
	)
	return nil
}
