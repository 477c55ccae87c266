package handlers

import (
	"github.com/fenilmodi00/lottery-backend/services"
	"github.com/gofiber/fiber/v2"
)

type CatalogHandler struct {
	Catalog   services.CatalogProvider
	Platforms *services.PlatformTable
}

func NewCatalogHandler(catalog services.CatalogProvider, platforms *services.PlatformTable) *CatalogHandler {
	return &CatalogHandler{Catalog: catalog, Platforms: platforms}
}

// GetCatalog returns the cached catalog. Forced scrapes go through the
// admin refresh endpoint.
func (h *CatalogHandler) GetCatalog(c *fiber.Ctx) error {
	snapshot, err := h.Catalog.Get(c.Context(), false)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snapshot,
		"count":   len(snapshot.Shows),
	})
}

func (h *CatalogHandler) GetPlatforms(c *fiber.Ctx) error {
	definitions := h.Platforms.Definitions()
	platforms := make([]fiber.Map, 0, len(definitions))
	for _, def := range definitions {
		platforms = append(platforms, fiber.Map{
			"platform":       def.Platform,
			"display_name":   def.DisplayName,
			"base_url":       def.BaseURL,
			"failure_policy": def.FailurePolicy.String(),
			"static_listing": def.StaticListing,
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    platforms,
	})
}
