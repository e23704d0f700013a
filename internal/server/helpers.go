package server

import (
	"errors"
	"strconv"
	"time"

	"crabber/internal/middleware"
	"crabber/internal/models"
	"crabber/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps an error to its HTTP status and response body.
func StatusFor(err error) (int, ErrorResponse) {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return models.HTTPStatus(appErr.Code), ErrorResponse{Error: appErr.Message, Code: appErr.Code}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := models.CodeInternal
		switch {
		case fe.Code == fiber.StatusNotFound:
			code = models.CodeNotFound
		case fe.Code == fiber.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		case fe.Code < fiber.StatusInternalServerError:
			code = models.CodeValidation
		}
		return fe.Code, ErrorResponse{Error: fe.Message, Code: code}
	}

	return fiber.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Code: models.CodeInternal}
}

// ErrorHandler renders handler errors as ErrorResponse JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, body := StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		observability.Logger.ErrorContext(c.UserContext(), "request error",
			"path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(body)
}

// parseID extracts a route parameter by name as a positive uint.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("Invalid " + param)
	}
	return uint(id), nil
}

// parseBody decodes the JSON body into dest.
func parseBody(c *fiber.Ctx, dest interface{}) error {
	if err := c.BodyParser(dest); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	return nil
}

// parsePage reads limit, offset, since and since_id, clamping limit to
// [1, max] with def when absent or non-positive.
func parsePage(c *fiber.Ctx, def, max int) (models.PageQuery, error) {
	q := models.PageQuery{
		Limit:    c.QueryInt("limit", def),
		Offset:   c.QueryInt("offset", 0),
		ViewerID: middleware.CurrentCrabID(c),
	}
	if q.Limit <= 0 {
		q.Limit = def
	}
	if q.Limit > max {
		q.Limit = max
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	if raw := c.Query("since"); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, models.NewValidationError("since must be a unix timestamp")
		}
		since := time.Unix(sec, 0).UTC()
		q.Since = &since
	}
	if raw := c.Query("since_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return q, models.NewValidationError("since_id must be a molt ID")
		}
		q.SinceID = uint(id)
	}
	return q, nil
}

func (s *Server) moltPage(c *fiber.Ctx) (models.PageQuery, error) {
	return parsePage(c, s.limits.APIDefaultMoltLimit, s.limits.APIMaxMoltLimit)
}

func (s *Server) crabPage(c *fiber.Ctx) (models.PageQuery, error) {
	return parsePage(c, s.limits.APIDefaultCrabLimit, s.limits.APIMaxCrabLimit)
}

// crabParam resolves the :username route parameter to a visible crab.
func (s *Server) crabParam(c *fiber.Ctx) (*models.Crab, error) {
	return s.svc.Identity.GetCrabByUsername(c.UserContext(), c.Params("username"))
}

// actor returns the authenticated crab's id. Routes calling it sit behind
// AuthRequired.
func actor(c *fiber.Ctx) uint {
	return middleware.CurrentCrabID(c)
}
