package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"tournament-league/middleware"
	"tournament-league/services"
)

type LeaderboardHandler struct {
	boards  *services.Leaderboards
	players *services.PlayerDirectory
	log     *zap.Logger
}

func NewLeaderboardHandler(boards *services.Leaderboards, players *services.PlayerDirectory, log *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{boards: boards, players: players, log: log}
}

func SetupLeaderboardRoutes(app *fiber.App, h *LeaderboardHandler, log *zap.Logger) {
	secured := app.Group("/leaderboards", middleware.UserContextMiddleware(log))
	secured.Get("/global", h.Global)
	secured.Get("/country", h.Country)
	secured.Get("/group", h.Group)
}

func (h *LeaderboardHandler) Global(c *fiber.Ctx) error {
	rows, err := h.boards.Global(c.UserContext(), c.QueryInt("limit"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"leaderboard": rows})
}

// Country defaults to the caller's own country.
func (h *LeaderboardHandler) Country(c *fiber.Ctx) error {
	country := c.Query("country")
	if country == "" {
		p, err := h.players.GetByExternalID(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, h.log, err)
		}
		country = p.Country
	}
	rows, err := h.boards.Country(c.UserContext(), country, c.QueryInt("limit"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"country": country, "leaderboard": rows})
}

func (h *LeaderboardHandler) Group(c *fiber.Ctx) error {
	p, err := h.players.GetByExternalID(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	rows, err := h.boards.Group(c.UserContext(), p.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"leaderboard": rows})
}
