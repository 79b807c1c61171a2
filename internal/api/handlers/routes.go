package handlers

import (
	"github.com/gin-gonic/gin"

	"bizcore.io/governance/internal/api/middleware"
)

// RegisterHealthRoutes mounts the unauthenticated probes.
func (s *Server) RegisterHealthRoutes(r gin.IRouter) {
	r.GET("/health/live", s.GetLiveness)
	r.GET("/health/ready", s.GetReadiness)
}

// RegisterRoutes mounts the governance API on r. Configuration and audit
// endpoints additionally require an administrative permission; the lifecycle
// and numbering operations are authorised by the engines themselves.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	manageLifecycle := middleware.RequirePermission(middleware.PermissionLifecycleManage)
	manageNumbering := middleware.RequirePermission(middleware.PermissionNumberingManage)
	readAudit := middleware.RequirePermission(middleware.PermissionAuditRead)

	admin := r.Group("/admin", middleware.RequirePermission(middleware.PermissionAdmin))
	admin.GET("/log-level", s.LogLevel)
	admin.PUT("/log-level", s.LogLevel)

	lc := r.Group("/lifecycle")
	lc.GET("/audit", readAudit, s.QueryAudit)
	lc.GET("/:entity_type/states", s.ListStates)
	lc.POST("/:entity_type/states", manageLifecycle, s.RegisterState)
	lc.GET("/:entity_type/states/:state", s.GetStateStatus)
	lc.DELETE("/:entity_type/states/:state", manageLifecycle, s.DeactivateState)
	lc.GET("/:entity_type/states/:state/allowed", s.ListAllowedTransitions)
	lc.GET("/:entity_type/default-state", s.GetDefaultState)
	lc.POST("/:entity_type/transition-rules", manageLifecycle, s.RegisterTransition)
	lc.DELETE("/:entity_type/transition-rules/:from_state/:to_state", manageLifecycle, s.DeactivateTransition)
	lc.POST("/:entity_type/entities/:entity_id/transitions", s.PerformTransition)
	lc.GET("/:entity_type/entities/:entity_id/history", s.GetHistory)

	num := r.Group("/numbering")
	num.GET("/rules", s.ListNumberingRules)
	num.GET("/rules/:entity_type", s.GetNumberingRule)
	num.PUT("/rules/:entity_type", manageNumbering, s.PutNumberingRule)
	num.POST("/:entity_type/entities/:entity_id/number", s.AssignNumber)
	num.GET("/:entity_type/entities/:entity_id/number", s.GetAssignedNumber)
	num.POST("/:entity_type/batch", s.AssignNumberBatch)
}
