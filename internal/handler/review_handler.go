package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pleastandby/major-project-sub000/internal/middleware"
	"github.com/pleastandby/major-project-sub000/internal/service"
	"github.com/pleastandby/major-project-sub000/internal/utils"
)

// ReviewHandler serves the instructor review queue.
type ReviewHandler struct {
	service service.ReviewService
	logger  zerolog.Logger
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service service.ReviewService, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: service,
		logger:  logger.With().Str("component", "review_handler").Logger(),
	}
}

// RegisterAssignmentRoutes attaches the review list nested under an assignment.
func (h *ReviewHandler) RegisterAssignmentRoutes(router fiber.Router) {
	router.Get("/:id/submissions", middleware.RequireRole(middleware.RoleInstructor, middleware.RoleAdmin), h.listSubmissions)
}

// RegisterSubmissionRoutes attaches the audit trail endpoint.
func (h *ReviewHandler) RegisterSubmissionRoutes(router fiber.Router) {
	router.Get("/:id/audit", middleware.RequireRole(middleware.RoleInstructor, middleware.RoleAdmin), h.audit)
}

// Register attaches the course-level review routes.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Get("/assignments", middleware.RequireRole(middleware.RoleInstructor, middleware.RoleAdmin), h.listForCourses)
}

func (h *ReviewHandler) listSubmissions(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	items, err := h.service.ListSubmissions(c.UserContext(), activityActorFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.OK(c, items, "submissions retrieved", fiber.Map{"total": len(items)})
}

func (h *ReviewHandler) listForCourses(c *fiber.Ctx) error {
	courseIDs, err := parseUintList(c.Query("course_ids"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if len(courseIDs) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "course_ids is required")
	}

	items, err := h.service.ListForCourses(c.UserContext(), activityActorFromContext(c), courseIDs)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.OK(c, items, "review queue retrieved", fiber.Map{"total": len(items)})
}

func (h *ReviewHandler) audit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	audit, err := h.service.Audit(c.UserContext(), activityActorFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err, nil)
	}

	return utils.SendSuccess(c, "audit trail retrieved", audit)
}
