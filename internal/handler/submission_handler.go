package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pleastandby/major-project-sub000/internal/middleware"
	"github.com/pleastandby/major-project-sub000/internal/service"
	"github.com/pleastandby/major-project-sub000/internal/utils"
)

// SubmissionHandler manages artifact upload and extraction endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// RegisterAssignmentRoutes attaches the student routes nested under an assignment.
func (h *SubmissionHandler) RegisterAssignmentRoutes(router fiber.Router) {
	students := middleware.RequireRole(middleware.RoleStudent)

	router.Post("/:id/submissions", students, h.submit)
	router.Get("/:id/submissions/me", students, h.mine)
}

// Register attaches the per-submission routes.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/:id/extract", h.retryExtraction)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return handleServiceError(c, h.logger, fmt.Errorf("%w: file is required", service.ErrInvalidArtifact), nil)
	}

	submission, err := h.service.Submit(c.UserContext(), activityActorFromContext(c), assignmentID, file)
	if err != nil {
		if submission.ID != 0 {
			return handleServiceError(c, h.logger, err, submission)
		}
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", submission)
}

func (h *SubmissionHandler) mine(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Fetch(c.UserContext(), assignmentID, userIDFromContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) retryExtraction(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.RetryExtraction(c.UserContext(), activityActorFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccess(c, "text extracted", submission)
}
