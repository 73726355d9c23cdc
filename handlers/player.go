package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"tournament-league/middleware"
	"tournament-league/services"
)

type PlayerHandler struct {
	players *services.PlayerDirectory
	ledger  *services.ScoreLedger
	log     *zap.Logger
}

func NewPlayerHandler(players *services.PlayerDirectory, ledger *services.ScoreLedger, log *zap.Logger) *PlayerHandler {
	return &PlayerHandler{players: players, ledger: ledger, log: log}
}

func SetupPlayerRoutes(app *fiber.App, h *PlayerHandler, log *zap.Logger) {
	secured := app.Group("/players", middleware.UserContextMiddleware(log))
	secured.Get("/search", h.Search)
	secured.Post("/", h.Register)
	secured.Get("/me", h.Me)
	secured.Delete("/me", h.DeleteMe)
	secured.Post("/me/levels", h.CompleteLevels)
}

// Register creates the local player of the gateway user.
func (h *PlayerHandler) Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Country  string `json:"country"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	p, err := h.players.Register(c.UserContext(), services.RegisterInput{
		ExternalUserID: middleware.UserID(c),
		Username:       req.Username,
		Country:        req.Country,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *PlayerHandler) Me(c *fiber.Ctx) error {
	p, err := h.players.GetByExternalID(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(p)
}

func (h *PlayerHandler) DeleteMe(c *fiber.Ctx) error {
	p, err := h.players.GetByExternalID(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.players.Delete(c.UserContext(), p.ID); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"message": "Player deleted successfully"})
}

// CompleteLevels records completed levels, 1 when the body omits the count.
func (h *PlayerHandler) CompleteLevels(c *fiber.Ctx) error {
	var req struct {
		CompletedLevelCount *int `json:"completed_level_count"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}
	count := 1
	if req.CompletedLevelCount != nil {
		count = *req.CompletedLevelCount
	}

	p, err := h.players.GetByExternalID(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	progress, err := h.ledger.CompleteLevels(c.UserContext(), p.ID, count)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(progress)
}

func (h *PlayerHandler) Search(c *fiber.Ctx) error {
	players, err := h.players.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"players": players})
}
