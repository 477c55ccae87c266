package handlers

import (
	"context"
	"time"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/services"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Applier is satisfied by services.ApplyOrchestrator
type Applier interface {
	ApplyForUser(ctx context.Context, userID string) ([]models.LotteryResult, error)
	ApplyForAllUsers(ctx context.Context) (map[string][]models.LotteryResult, models.BatchSummary, error)
}

type AdminHandler struct {
	Applier Applier
	Catalog services.CatalogProvider
}

func NewAdminHandler(applier Applier, catalog services.CatalogProvider) *AdminHandler {
	return &AdminHandler{
		Applier: applier,
		Catalog: catalog,
	}
}

// TriggerApplyAll runs the apply batch for every user and waits for it
func (h *AdminHandler) TriggerApplyAll(c *fiber.Ctx) error {
	logrus.WithField("admin", c.Locals(adminSubjectKey)).Info("Manual apply run triggered via admin endpoint")

	startTime := time.Now()
	results, summary, err := h.Applier.ApplyForAllUsers(c.Context())
	if err != nil {
		return failure(c, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"data":      results,
		"summary":   summary,
		"duration":  time.Since(startTime).String(),
		"timestamp": time.Now(),
	})
}

// TriggerApplyUser runs the apply batch for the user at :id
func (h *AdminHandler) TriggerApplyUser(c *fiber.Ctx) error {
	userID := c.Params("id")
	logrus.WithFields(logrus.Fields{
		"admin":   c.Locals(adminSubjectKey),
		"user_id": userID,
	}).Info("Manual single-user apply run triggered via admin endpoint")

	startTime := time.Now()
	results, err := h.Applier.ApplyForUser(c.Context(), userID)
	if err != nil {
		return failure(c, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"data":     results,
		"duration": time.Since(startTime).String(),
	})
}

// TriggerCatalogRefresh forces a scrape of every platform
func (h *AdminHandler) TriggerCatalogRefresh(c *fiber.Ctx) error {
	startTime := time.Now()
	snapshot, err := h.Catalog.Get(c.Context(), true)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(fiber.Map{
		"success":            true,
		"count":              len(snapshot.Shows),
		"stale":              snapshot.Stale,
		"degraded":           snapshot.Degraded,
		"failed_platforms":   snapshot.FailedPlatforms,
		"fallback_platforms": snapshot.FallbackPlatforms,
		"duration":           time.Since(startTime).String(),
	})
}
