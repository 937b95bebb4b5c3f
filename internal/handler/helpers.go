package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pleastandby/major-project-sub000/internal/middleware"
	"github.com/pleastandby/major-project-sub000/internal/service"
	"github.com/pleastandby/major-project-sub000/internal/utils"
)

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func parseUintList(input string) ([]uint, error) {
	parts := splitAndTrim(input)
	result := make([]uint, 0, len(parts))
	for _, part := range parts {
		parsed, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, errors.New("invalid identifier list")
		}
		result = append(result, uint(parsed))
	}
	return result, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// errorStatus maps a classified service error onto an HTTP status.
func errorStatus(err error, class service.Classification) int {
	switch class.Kind {
	case service.KindFixInput:
		if errors.Is(err, service.ErrInvalidArtifact) {
			return fiber.StatusBadRequest
		}
		return fiber.StatusUnprocessableEntity
	case service.KindRetry:
		switch {
		case errors.Is(err, service.ErrGradingInProgress), errors.Is(err, service.ErrConcurrentModification):
			return fiber.StatusConflict
		case errors.Is(err, service.ErrGradingTimeout):
			return fiber.StatusServiceUnavailable
		default:
			return fiber.StatusBadGateway
		}
	case service.KindWrongOrder:
		return fiber.StatusConflict
	case service.KindNotFound:
		return fiber.StatusNotFound
	case service.KindForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// handleServiceError writes the error envelope. data, when set, is the resource state the
// failed call left behind.
func handleServiceError(c *fiber.Ctx, logger zerolog.Logger, err error, data interface{}) error {
	class := service.ClassifyError(err)
	status := errorStatus(err, class)

	details := fiber.Map{
		"kind":      string(class.Kind),
		"retryable": class.Retryable,
	}
	if data != nil {
		details["resource"] = data
	}

	message := err.Error()
	if class.Kind == service.KindInternal {
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
		message = "internal server error"
	} else {
		requestLogger(logger, c).Debug().Err(err).Str("kind", string(class.Kind)).Msg("request rejected")
	}

	return utils.Fail(c, status, message, details)
}
