package handlers

import (
	"time"

	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/gofiber/fiber/v2"
)

// MetricsSource is anything exposing service counters
type MetricsSource interface {
	Metrics() *shared.ServiceMetrics
}

type PerformanceHandler struct {
	Sources      []MetricsSource
	RefreshCount func() int64
	StartedAt    time.Time
}

func NewPerformanceHandler(refreshCount func() int64, sources ...MetricsSource) *PerformanceHandler {
	return &PerformanceHandler{
		Sources:      sources,
		RefreshCount: refreshCount,
		StartedAt:    time.Now(),
	}
}

// GetPerformanceMetrics returns scrape and apply counters per service
func (h *PerformanceHandler) GetPerformanceMetrics(c *fiber.Ctx) error {
	services := make(map[string]interface{}, len(h.Sources))
	for _, source := range h.Sources {
		snapshot := source.Metrics().GetSnapshot()
		services[snapshot.ServiceName] = snapshot
	}

	metrics := fiber.Map{
		"services":       services,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	}
	if h.RefreshCount != nil {
		metrics["catalog_refreshes"] = h.RefreshCount()
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"data":      metrics,
		"timestamp": time.Now(),
	})
}
