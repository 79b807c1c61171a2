package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bizcore.io/governance/internal/pkg/logger"
	"bizcore.io/governance/internal/pkg/worker"
)

// HealthResponse is the body of the health probes.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Pools  []worker.Stats    `json:"pools,omitempty"`
}

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// GetReadiness handles GET /health/ready. Worker pool usage is reported but
// never fails the probe; a saturated pool only queues batch items.
func (s *Server) GetReadiness(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	for _, p := range s.pools {
		resp.Pools = append(resp.Pools, p.Stats())
	}
	if s.pinger == nil {
		c.JSON(http.StatusOK, resp)
		return
	}
	if err := s.pinger.Ping(c.Request.Context()); err != nil {
		resp.Status = "degraded"
		resp.Checks = map[string]string{"database": "error"}
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp.Checks = map[string]string{"database": "ok"}
	c.JSON(http.StatusOK, resp)
}

// LogLevel handles GET and PUT /admin/log-level by delegating to the
// logger's atomic level.
func (s *Server) LogLevel(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	logger.LevelHandler().ServeHTTP(c.Writer, c.Request)
}
