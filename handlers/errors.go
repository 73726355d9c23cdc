package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"tournament-league/services"
)

// respondError maps service errors to HTTP responses. Unknown errors are
// logged and reported as 500.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var adm *services.AdmissionError
	switch {
	case errors.As(err, &adm):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": adm.Error(), "reason": adm.Reason})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyClaimed),
		errors.Is(err, services.ErrDuplicateTournament),
		errors.Is(err, services.ErrPlayerExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotEligible), errors.Is(err, services.ErrInsufficientFunds):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	log.Error("request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
