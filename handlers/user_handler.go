package handlers

import (
	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/services"
	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	Users   *services.UserService
	History *services.ResultHistory
}

func NewUserHandler(users *services.UserService, history *services.ResultHistory) *UserHandler {
	return &UserHandler{Users: users, History: history}
}

func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var profile models.UserProfile
	if err := c.BodyParser(&profile); err != nil {
		return badRequest(c, "Invalid request body")
	}
	profile.ID = ""
	saved, err := h.Users.Save(c.Context(), profile)
	if err != nil {
		return failure(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    saved,
	})
}

// PutUser creates or replaces the profile at :id
func (h *UserHandler) PutUser(c *fiber.Ctx) error {
	var profile models.UserProfile
	if err := c.BodyParser(&profile); err != nil {
		return badRequest(c, "Invalid request body")
	}
	profile.ID = c.Params("id")
	saved, err := h.Users.Save(c.Context(), profile)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    saved,
	})
}

func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	profile, err := h.Users.Get(c.Context(), c.Params("id"))
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    profile,
	})
}

func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	if err := h.Users.Delete(c.Context(), c.Params("id")); err != nil {
		return failure(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SubmitPreferences stores free-text preferences. A parse failure is not an
// error here: the text is kept and the user matches nothing until resubmitted.
func (h *UserHandler) SubmitPreferences(c *fiber.Ctx) error {
	type Request struct {
		Text string `json:"text"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	profile, err := h.Users.SubmitPreferenceText(c.Context(), c.Params("id"), req.Text)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    profile,
		"parsed":  profile.ParsedPreference != nil,
	})
}

func (h *UserHandler) GetResults(c *fiber.Ctx) error {
	userID := c.Params("id")
	if _, err := h.Users.Get(c.Context(), userID); err != nil {
		return failure(c, err)
	}
	results, err := h.History.List(c.Context(), userID)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    results,
		"count":   len(results),
	})
}
