package handler

import (
	"context"
	"time"

	"mathquiz-forge/internal/dto"
	"mathquiz-forge/internal/middleware"
	"mathquiz-forge/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

const healthTimeout = 3 * time.Second

type QuestionHandler struct {
	service service.QuestionService
	checks  map[string]HealthCheck
	logger  *zap.Logger
}

func NewQuestionHandler(svc service.QuestionService, checks map[string]HealthCheck, logger *zap.Logger) *QuestionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionHandler{service: svc, checks: checks, logger: logger}
}

// RegisterRoutes mounts the read-only question API on app.
func (h *QuestionHandler) RegisterRoutes(app fiber.Router) {
	vm := middleware.NewValidationMiddleware()

	app.Get("/healthz", h.Health)
	api := app.Group("/api")
	api.Get("/questions", vm.ValidateLimit(), h.GetRecentQuestions)
	api.Get("/runs/:run_id/questions", vm.ValidateRunID(), h.GetRunQuestions)
}

// GetRecentQuestions handles GET /api/questions?limit=N
func (h *QuestionHandler) GetRecentQuestions(c *fiber.Ctx) error {
	limit, _ := c.Locals(middleware.LocalLimit).(int)
	resp, err := h.service.GetRecentQuestions(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// GetRunQuestions handles GET /api/runs/:run_id/questions
func (h *QuestionHandler) GetRunQuestions(c *fiber.Ctx) error {
	runID, _ := c.Locals(middleware.LocalRunID).(string)
	resp, err := h.service.GetRunQuestions(c.UserContext(), runID)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// Health reports 503 when any dependency check fails.
func (h *QuestionHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	resp := dto.HealthResponse{Status: "ok", Services: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("service", name), zap.Error(err))
			resp.Services[name] = "down"
			resp.Status = "degraded"
			continue
		}
		resp.Services[name] = "up"
	}

	status := fiber.StatusOK
	if resp.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}
