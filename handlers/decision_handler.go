package handlers

import (
	"strings"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/services"
	"github.com/gofiber/fiber/v2"
)

type DecisionHandler struct {
	Decisions *services.DecisionService
	Overrides *services.OverrideService
	Platforms *services.PlatformTable
}

func NewDecisionHandler(decisions *services.DecisionService, overrides *services.OverrideService, platforms *services.PlatformTable) *DecisionHandler {
	return &DecisionHandler{Decisions: decisions, Overrides: overrides, Platforms: platforms}
}

func (h *DecisionHandler) GetDecisions(c *fiber.Ctx) error {
	decisions, catalog, err := h.Decisions.DecisionsForUser(c.Context(), c.Params("id"))
	if err != nil {
		return failure(c, err)
	}
	selected := 0
	for _, d := range decisions {
		if d.FinalDecision {
			selected++
		}
	}
	return c.JSON(fiber.Map{
		"success":           true,
		"data":              decisions,
		"selected":          selected,
		"catalog_timestamp": catalog.Timestamp,
		"catalog_stale":     catalog.Stale,
	})
}

type overrideRequest struct {
	Platform    models.Platform `json:"platform"`
	ShowName    string          `json:"show_name"`
	ShouldApply *bool           `json:"should_apply"`
}

func (h *DecisionHandler) PutOverride(c *fiber.Ctx) error {
	var req overrideRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if _, ok := h.Platforms.Lookup(req.Platform); !ok {
		return badRequest(c, "Unknown platform")
	}
	if req.ShouldApply == nil || strings.TrimSpace(req.ShowName) == "" {
		return badRequest(c, "show_name and should_apply are required")
	}
	override, err := h.Overrides.Set(c.Context(), c.Params("id"), req.Platform, req.ShowName, *req.ShouldApply)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    override,
	})
}

// DeleteOverride takes ?platform=&show_name= and returns the show to its
// preference-derived decision
func (h *DecisionHandler) DeleteOverride(c *fiber.Ctx) error {
	platform := models.Platform(c.Query("platform"))
	showName := c.Query("show_name")
	if _, ok := h.Platforms.Lookup(platform); !ok || strings.TrimSpace(showName) == "" {
		return badRequest(c, "platform and show_name are required")
	}
	if err := h.Overrides.Delete(c.Context(), c.Params("id"), platform, showName); err != nil {
		return failure(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
