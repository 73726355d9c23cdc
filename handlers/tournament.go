package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"tournament-league/config"
	"tournament-league/middleware"
	"tournament-league/models"
	"tournament-league/services"
)

type TournamentHandler struct {
	league   *services.League
	schedule config.ScheduleConfig
	log      *zap.Logger
}

func NewTournamentHandler(league *services.League, schedule config.ScheduleConfig, log *zap.Logger) *TournamentHandler {
	return &TournamentHandler{league: league, schedule: schedule, log: log}
}

func SetupTournamentRoutes(app *fiber.App, h *TournamentHandler, log *zap.Logger) {
	secured := app.Group("/tournaments", middleware.UserContextMiddleware(log))
	secured.Get("/current", h.Current)
	secured.Post("/enter", h.Enter)
	secured.Get("/rank", h.Rank)
	secured.Post("/claim", h.Claim)

	admin := app.Group("/admin", middleware.UserContextMiddleware(log), middleware.RequireRole("admin"))
	admin.Post("/tournaments/daily", h.CreateDaily)
}

// player resolves the gateway user to the local player record.
func (h *TournamentHandler) player(c *fiber.Ctx) (*models.Player, error) {
	return h.league.Players.GetByExternalID(c.UserContext(), middleware.UserID(c))
}

// Current returns today's tournament and when the next one is created.
func (h *TournamentHandler) Current(c *fiber.Ctx) error {
	resp := fiber.Map{}
	if next, err := h.schedule.NextCreation(h.league.Registry.Clock.Now()); err == nil {
		resp["next_tournament_at"] = next
	}

	t, err := h.league.Registry.GetCurrent(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	groups, err := h.league.Registry.ListGroups(c.UserContext(), t.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	resp["tournament"] = t
	resp["group_count"] = len(groups)
	resp["entry_fee"] = h.league.Rules.EntryFee
	resp["min_level"] = h.league.Rules.MinLevel
	resp["entry_cutoff_hour"] = h.league.Rules.EntryCutoffHour
	resp["rewards"] = h.league.Rewards.Buckets()
	return c.JSON(resp)
}

// Enter admits the player into a tournament, the current one by default.
func (h *TournamentHandler) Enter(c *fiber.Ctx) error {
	var req struct {
		TournamentID string `json:"tournament_id"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	p, err := h.player(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	entry, err := h.league.Allocator.Enter(c.UserContext(), p.ID, req.TournamentID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"tournament_id": entry.Tournament.ID,
		"group_id":      entry.Group.ID,
		"score":         entry.Membership.Score,
		"coins":         entry.Membership.Player.Coins,
	})
}

// Rank returns the player's rank in the given or current tournament.
func (h *TournamentHandler) Rank(c *fiber.Ctx) error {
	p, err := h.player(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	rank, m, err := h.league.Ranks.RankIn(c.UserContext(), p.ID, c.Query("tournament"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"rank":          rank,
		"score":         m.Score,
		"group_id":      m.GroupID,
		"tournament_id": m.TournamentID,
	})
}

// Claim settles rewards of finished tournaments.
func (h *TournamentHandler) Claim(c *fiber.Ctx) error {
	var req struct {
		Tournament string `json:"tournament"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	p, err := h.player(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	res, err := h.league.Settlement.ClaimAll(c.UserContext(), p.ID, req.Tournament)
	if err != nil && res != nil && len(res.Claims) > 0 {
		h.log.Error("claim stopped after partial settlement",
			zap.String("player_id", p.ID),
			zap.Int("settled", len(res.Claims)),
			zap.Int64("coins", res.Coins),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  "claim interrupted, settled rewards are listed",
			"coins":  res.Coins,
			"claims": res.Claims,
		})
	}
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"message": "Reward claimed successfully",
		"coins":   res.Coins,
		"claims":  res.Claims,
	})
}

// CreateDaily creates the next daily tournament outside the schedule.
func (h *TournamentHandler) CreateDaily(c *fiber.Ctx) error {
	t, err := h.league.Registry.CreateDaily(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}
