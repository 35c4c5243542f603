package engine

import (
	"github.com/gin-gonic/gin"
	"github.com/simbroker/papertrade-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the internal engine endpoints.
// These sit behind the scheduler/ops credential gate; the engine itself
// performs no authorization.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ProcessOrdersHandler handles POST requests triggering a processing pass.
// The response carries the batch result even when individual orders failed.
func (h *GinHandlers) ProcessOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := h.service.ProcessAllPendingOrders(c.Request.Context())
		response.Success(c, result)
	}
}

// CleanupOrdersHandler handles POST requests triggering a retention sweep.
func (h *GinHandlers) CleanupOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := h.service.CleanupOrders(c.Request.Context())
		response.Success(c, result)
	}
}

// StatsHandler handles GET requests for backlog statistics.
func (h *GinHandlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.service.GetOrderProcessingStats()
		response.Handle(c, stats, err)
	}
}
