// Package middleware provides authentication, rate limiting, logging and tracing middleware for the HTTP API.
package middleware

import (
	"context"
	"strings"

	"crabber/internal/models"
	"crabber/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the auth middleware.
const (
	CrabIDLocal = "crabID"
	CrabLocal   = "crab"
)

// TokenResolver maps an access token to its visible owner.
type TokenResolver func(ctx context.Context, key string) (*models.Crab, error)

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": message,
		"code":  models.CodeUnauthorized,
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>". The
// second result is false when the header is absent.
func bearerToken(c *fiber.Ctx) (string, bool, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", false, nil
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", true, fiber.NewError(fiber.StatusUnauthorized, "Invalid authorization header format")
	}
	return parts[1], true, nil
}

// authenticate resolves the bearer token and stores the crab in locals and the
// user context.
func authenticate(c *fiber.Ctx, resolve TokenResolver, required bool) error {
	token, present, err := bearerToken(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}
	if !present {
		if required {
			return unauthorized(c, "Authorization header required")
		}
		return c.Next()
	}

	crab, err := resolve(c.UserContext(), token)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return unauthorized(c, "Invalid or revoked access token")
		}
		return err
	}

	c.Locals(CrabIDLocal, crab.ID)
	c.Locals(CrabLocal, crab)
	c.SetUserContext(observability.WithCrabID(c.UserContext(), crab.ID))
	return c.Next()
}

// AuthRequired rejects requests without a valid access token.
func AuthRequired(resolve TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authenticate(c, resolve, true)
	}
}

// AuthOptional identifies the caller when a token is sent. A malformed or
// unknown token is still rejected.
func AuthOptional(resolve TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authenticate(c, resolve, false)
	}
}

// CurrentCrab returns the authenticated crab, if any.
func CurrentCrab(c *fiber.Ctx) (*models.Crab, bool) {
	crab, ok := c.Locals(CrabLocal).(*models.Crab)
	return crab, ok && crab != nil
}

// CurrentCrabID returns the authenticated crab's id, or 0.
func CurrentCrabID(c *fiber.Ctx) uint {
	id, _ := c.Locals(CrabIDLocal).(uint)
	return id
}
