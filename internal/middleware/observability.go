package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pleastandby/major-project-sub000/internal/observability"
	"github.com/pleastandby/major-project-sub000/internal/utils"
)

// Observability records request metrics and logs one line per API request. Requests are
// labelled with the caller role, and failures with the pipeline error kind the handler reported.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		if strings.HasPrefix(c.Path(), "/api/") {
			route := routeTemplate(c)
			method := c.Method()
			status := c.Response().StatusCode()
			statusLabel := fmt.Sprintf("%d", status)
			role := roleLabel(c.Locals("user_role"))
			kind := ""

			observability.APIRequests().WithLabelValues(method, route, statusLabel, role).Inc()
			observability.APILatency().WithLabelValues(method, route).Observe(duration.Seconds())
			if status >= fiber.StatusBadRequest {
				kind = errorKind(c, status)
				observability.APIErrors().WithLabelValues(method, route, statusLabel, kind).Inc()
			}

			latencyMs := float64(duration) / float64(time.Millisecond)
			bucket := latencyBucket(duration)
			requestLogger := logger.With().
				Str("correlation_id", GetCorrelationID(c)).
				Str("route", route).
				Str("method", method).
				Int("status", status).
				Float64("latency_ms", latencyMs).
				Str("latency_bucket", bucket).
				Interface("user_id", c.Locals("user_id")).
				Str("role", role).
				Logger()
			if kind != "" {
				requestLogger = requestLogger.With().Str("error_kind", kind).Logger()
			}

			switch {
			case status >= fiber.StatusInternalServerError:
				requestLogger.Error().Msg("request failed")
			case status >= fiber.StatusBadRequest:
				requestLogger.Warn().Msg("request completed with client error")
			default:
				requestLogger.Info().Msg("request completed")
			}
		}

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

// roleLabel keeps the role label bounded to the roles tokens can carry.
func roleLabel(value interface{}) string {
	switch role := normalizeRoleValue(value); role {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return role
	case "":
		return "anonymous"
	default:
		return "other"
	}
}

func errorKind(c *fiber.Ctx, status int) string {
	if kind, ok := c.Locals(utils.LocalErrorKind).(string); ok && kind != "" {
		return kind
	}
	switch status {
	case fiber.StatusUnauthorized:
		return "unauthenticated"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusRequestEntityTooLarge:
		return "fix_input"
	default:
		return "unclassified"
	}
}

func latencyBucket(duration time.Duration) string {
	switch {
	case duration <= 25*time.Millisecond:
		return "<=25ms"
	case duration <= 50*time.Millisecond:
		return "<=50ms"
	case duration <= 100*time.Millisecond:
		return "<=100ms"
	case duration <= 250*time.Millisecond:
		return "<=250ms"
	case duration <= 500*time.Millisecond:
		return "<=500ms"
	case duration <= 5*time.Second:
		return "<=5s"
	default:
		return ">5s"
	}
}
