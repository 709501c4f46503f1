package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"scoreboard/internal/lifecycle"
	"scoreboard/internal/roster"
	"scoreboard/internal/server/core"
	"scoreboard/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

const apiPrefix = "/api/v1"

// requestTypeFor picks the body type of a route, nil for routes without a typed body
func requestTypeFor(method, path string) any {
	if strings.HasPrefix(path, apiPrefix+"/store/") {
		return nil // raw values
	}

	switch method {
	case fiber.MethodPost:
		switch {
		case path == apiPrefix+"/matches":
			return &lifecycle.CreateRequest{}
		case strings.HasSuffix(path, "/score"):
			return &core.ScoreRequest{}
		case strings.HasSuffix(path, "/goals/removal"):
			return &core.RemovalRequest{}
		case strings.HasSuffix(path, "/goals"):
			return &core.GoalRequest{}
		case path == apiPrefix+"/teams":
			return &roster.TeamInput{}
		case strings.HasPrefix(path, apiPrefix+"/teams/") && strings.HasSuffix(path, "/players"):
			return &roster.PlayerInput{}
		case path == apiPrefix+"/championships":
			return &core.ChampionshipRequest{}
		case path == apiPrefix+"/commit":
			return &core.CommitRequest{}
		}
	case fiber.MethodPut:
		switch {
		case strings.HasSuffix(path, "/date"):
			return &core.DateRequest{}
		case strings.HasSuffix(path, "/badges"):
			return &roster.BadgeInput{}
		case strings.HasSuffix(path, "/coach"):
			return &roster.CoachInput{}
		case path == apiPrefix+"/settings/default-team":
			return &core.DefaultTeamRequest{}
		case strings.HasPrefix(path, apiPrefix+"/players/"):
			return &roster.PlayerInput{}
		}
	}
	return nil
}

// validationMiddleware parses and validates typed request bodies before handlers run
func validationMiddleware(c *fiber.Ctx) error {
	method := c.Method()
	if method == fiber.MethodGet || method == fiber.MethodDelete || method == fiber.MethodOptions {
		return c.Next()
	}

	requestType := requestTypeFor(method, strings.TrimSuffix(c.Path(), "/"))
	if requestType == nil {
		return c.Next()
	}

	if err := c.BodyParser(requestType); err != nil {
		return badRequest(c, "invalid request body", err.Error())
	}

	if err := validate.Struct(requestType); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return badRequest(c, "validation failed", err.Error())
		}
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "validation failed",
			Code:    core.ErrValidation,
			Details: describe(errs),
		})
	}

	// Store validated body for handler use
	c.Locals("validatedBody", requestType)
	c.Locals("validated", true)

	return c.Next()
}

func describe(errs validator.ValidationErrors) string {
	var details strings.Builder
	for _, err := range errs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		switch err.Tag() {
		case "required":
			details.WriteString(fmt.Sprintf("%s is required", err.Field()))
		case "oneof":
			details.WriteString(fmt.Sprintf("%s must be one of [%s]", err.Field(), err.Param()))
		case "min":
			if err.Type().Kind() == reflect.String {
				details.WriteString(fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param()))
			} else {
				details.WriteString(fmt.Sprintf("%s must be at least %s", err.Field(), err.Param()))
			}
		case "max":
			if err.Type().Kind() == reflect.String {
				details.WriteString(fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param()))
			} else {
				details.WriteString(fmt.Sprintf("%s must be at most %s", err.Field(), err.Param()))
			}
		case "hexcolor":
			details.WriteString(fmt.Sprintf("%s must be a hex color", err.Field()))
		default:
			details.WriteString(fmt.Sprintf("%s failed %s validation", err.Field(), err.Tag()))
		}
	}
	return details.String()
}

// validatedBody returns the body validationMiddleware parsed for this route.
// On false the error response has been written.
func validatedBody[T any](c *fiber.Ctx) (T, bool) {
	var zero T
	validated, ok := c.Locals("validated").(bool)
	if !ok || !validated {
		_ = c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
			Error: "validation bypass detected",
			Code:  core.ErrInternalError,
		})
		return zero, false
	}
	body, ok := c.Locals("validatedBody").(*T)
	if !ok || body == nil {
		_ = c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
			Error: "validation data missing",
			Code:  core.ErrInternalError,
		})
		return zero, false
	}
	return *body, true
}

// validKey reports whether s can address a single store node segment
func validKey(s string) bool {
	p, err := store.ParsePath(s)
	return err == nil && p.IsCollection()
}
