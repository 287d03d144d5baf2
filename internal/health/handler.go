package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler wires a Checker to Gin routes.
type Handler struct {
	checker *Checker
}

// NewHandler wraps a Checker for HTTP use.
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// Liveness handles GET /healthz.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Liveness())
}

// Readiness handles GET /readyz. Returns 503 when unhealthy so load
// balancers and orchestrators stop routing traffic here.
func (h *Handler) Readiness(c *gin.Context) {
	resp := h.checker.Readiness(c.Request.Context())
	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
