package handlers

import "github.com/gofiber/fiber/v2"

// Routes bundles the handlers mounted under the API group
type Routes struct {
	Catalog     *CatalogHandler
	Users       *UserHandler
	Decisions   *DecisionHandler
	Admin       *AdminHandler
	Performance *PerformanceHandler
	AdminSecret string
}

// RegisterRoutes mounts every endpoint on router
func RegisterRoutes(router fiber.Router, r Routes) {
	// Catalog Routes
	router.Get("/shows", r.Catalog.GetCatalog)
	router.Get("/platforms", r.Catalog.GetPlatforms)

	// User Routes
	router.Post("/users", r.Users.CreateUser)
	router.Put("/users/:id", r.Users.PutUser)
	router.Get("/users/:id", r.Users.GetUser)
	router.Delete("/users/:id", r.Users.DeleteUser)
	router.Post("/users/:id/preferences", r.Users.SubmitPreferences)
	router.Get("/users/:id/results", r.Users.GetResults)

	// Decision Routes
	router.Get("/users/:id/decisions", r.Decisions.GetDecisions)
	router.Put("/users/:id/overrides", r.Decisions.PutOverride)
	router.Delete("/users/:id/overrides", r.Decisions.DeleteOverride)

	// Admin Routes
	admin := router.Group("/admin", RequireAdmin(r.AdminSecret))
	admin.Post("/apply", r.Admin.TriggerApplyAll)
	admin.Post("/apply/:id", r.Admin.TriggerApplyUser)
	admin.Post("/catalog/refresh", r.Admin.TriggerCatalogRefresh)
	admin.Get("/metrics", r.Performance.GetPerformanceMetrics)
}
