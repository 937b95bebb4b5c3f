package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pleastandby/major-project-sub000/internal/dto"
	"github.com/pleastandby/major-project-sub000/internal/middleware"
	"github.com/pleastandby/major-project-sub000/internal/service"
	"github.com/pleastandby/major-project-sub000/internal/utils"
)

// AssignmentHandler exposes assignment endpoints.
type AssignmentHandler struct {
	service service.AssignmentService
	logger  zerolog.Logger
}

// NewAssignmentHandler constructs an assignment handler.
func NewAssignmentHandler(service service.AssignmentService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches the assignment routes to the router group.
func (h *AssignmentHandler) Register(router fiber.Router) {
	reviewers := middleware.RequireRole(middleware.RoleInstructor, middleware.RoleAdmin)

	router.Post("", reviewers, h.create)
	router.Get("/:id", h.get)
	router.Patch("/:id/valuation-mode", reviewers, h.updateValuationMode)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.Create(c.UserContext(), activityActorFromContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", assignment)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignment, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) updateValuationMode(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ValuationModeUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.UpdateValuationMode(c.UserContext(), activityActorFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccess(c, "valuation mode updated", assignment)
}
