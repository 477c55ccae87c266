package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	adminSubjectKey = "admin_subject"
	adminRole       = "admin"
)

// RequireAdmin validates an HS256 bearer token carrying role=admin. With no
// secret configured the admin routes are closed.
func RequireAdmin(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "admin endpoints are disabled",
			})
		}

		auth := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(auth, "Bearer ") {
			return unauthorized(c, "missing bearer token")
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			logrus.WithFields(logrus.Fields{
				"component": "RequireAdmin",
				"path":      c.Path(),
			}).WithError(err).Warn("Rejected admin token")
			return unauthorized(c, "invalid token")
		}
		if role, _ := claims["role"].(string); role != adminRole {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "admin role required",
			})
		}

		subject, _ := claims.GetSubject()
		c.Locals(adminSubjectKey, subject)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// NewAdminToken signs an admin bearer token valid for ttl
func NewAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": adminRole,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
