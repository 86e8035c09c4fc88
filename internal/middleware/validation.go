package middleware

import (
	"mathquiz-forge/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalRunID = "validated_run_id"
	LocalLimit = "validated_limit"
)

// ValidationMiddleware provides request validation middleware
type ValidationMiddleware struct {
	validator *validation.Validator
}

func NewValidationMiddleware() *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validation.NewValidator(),
	}
}

// ValidateRunID checks the :run_id path parameter.
func (vm *ValidationMiddleware) ValidateRunID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		runID := c.Params("run_id")
		if errs := vm.validator.ValidateRunID(runID); len(errs) > 0 {
			return errs
		}
		c.Locals(LocalRunID, runID)
		return c.Next()
	}
}

// ValidateLimit parses the optional limit query parameter.
func (vm *ValidationMiddleware) ValidateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, errs := vm.validator.ParseLimit(c.Query("limit"))
		if len(errs) > 0 {
			return errs
		}
		c.Locals(LocalLimit, limit)
		return c.Next()
	}
}
