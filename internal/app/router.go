package app

import (
	"fmt"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"bizcore.io/governance/internal/api/handlers"
	"bizcore.io/governance/internal/api/middleware"
	"bizcore.io/governance/internal/api/openapi"
	"bizcore.io/governance/internal/config"
)

const apiBasePath = "/api/v1"

// defaultDevOrigins are allowed when no origins are configured.
var defaultDevOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig) (*gin.Engine, error) {
	doc, err := openapi.Load()
	if err != nil {
		return nil, err
	}
	validator, err := middleware.NewOpenAPIValidator(doc, middleware.ValidatorOptions{BasePath: apiBasePath})
	if err != nil {
		return nil, fmt.Errorf("init openapi validator: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery(), cors.New(buildCORSConfig(cfg)), middleware.RequestID())

	server.RegisterHealthRoutes(router.Group(apiBasePath))

	api := router.Group(apiBasePath)
	// The error handler sits after the validator so rendered errors pass
	// through the same writer as handler responses.
	api.Use(middleware.JWTAuth(jwtCfg), validator, middleware.ErrorHandler())
	server.RegisterRoutes(api)
	return router, nil
}

func buildCORSConfig(cfg *config.Config) cors.Config {
	out := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	origins := cfg.Server.AllowedOrigins
	if slices.Contains(origins, "*") {
		if cfg.Server.UnsafeAllowAllOrigins {
			// Browsers reject credentialed requests to a wildcard origin.
			out.AllowAllOrigins = true
			out.AllowCredentials = false
			return out
		}
		origins = slices.DeleteFunc(slices.Clone(origins), func(o string) bool { return o == "*" })
	}
	if len(origins) == 0 {
		origins = slices.Clone(defaultDevOrigins)
	}
	out.AllowOrigins = origins
	return out
}
