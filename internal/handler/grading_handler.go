package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pleastandby/major-project-sub000/internal/dto"
	"github.com/pleastandby/major-project-sub000/internal/middleware"
	"github.com/pleastandby/major-project-sub000/internal/service"
	"github.com/pleastandby/major-project-sub000/internal/utils"
)

// GradingHandler wires AI grading, approval and override endpoints.
type GradingHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(service service.GradingService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading endpoints to the router group. aiLimiter guards the
// expensive grading call and may be nil.
func (h *GradingHandler) Register(router fiber.Router, aiLimiter fiber.Handler) {
	reviewers := middleware.RequireRole(middleware.RoleInstructor, middleware.RoleAdmin)

	aiHandlers := []fiber.Handler{reviewers}
	if aiLimiter != nil {
		aiHandlers = append(aiHandlers, aiLimiter)
	}
	aiHandlers = append(aiHandlers, h.requestAIGrade)

	router.Post("/:id/ai-grade", aiHandlers...)
	router.Post("/:id/approve", reviewers, h.approve)
	router.Put("/:id/grade", reviewers, h.override)
}

func (h *GradingHandler) requestAIGrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.RequestAIGrade(c.UserContext(), activityActorFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccess(c, "submission graded by ai", submission)
}

func (h *GradingHandler) approve(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Approve(c.UserContext(), activityActorFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccess(c, "grade approved", submission)
}

func (h *GradingHandler) override(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradeOverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	submission, err := h.service.Override(c.UserContext(), activityActorFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccess(c, "grade overridden", submission)
}
