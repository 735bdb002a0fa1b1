package server

import (
	"github.com/gofiber/fiber/v2"
)

const (
	DEFAULT_RECENT_GAMES = 20
	MAX_RECENT_GAMES     = 100
)

// RegisterHistoryRoutes serves the leaderboard and game log.
func (s *FiberServer) RegisterHistoryRoutes(api fiber.Router) {
	hist := api.Group("/history")
	hist.Get("/leaderboard", s.leaderboardHandler)
	hist.Get("/recent", s.recentGamesHandler)
	hist.Get("/recent/:userId", s.recentGamesHandler)
}

func (s *FiberServer) leaderboardHandler(c *fiber.Ctx) error {
	n := c.QueryInt("n", s.cfg.LeaderboardSize)
	if n < 0 {
		return badRequest(c, "n must not be negative")
	}

	entries, err := s.history.TopEntries(c.UserContext(), n)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"entries": entries})
}

func (s *FiberServer) recentGamesHandler(c *fiber.Ctx) error {
	n := c.QueryInt("n", DEFAULT_RECENT_GAMES)
	if n < 0 {
		return badRequest(c, "n must not be negative")
	}
	if n > MAX_RECENT_GAMES {
		n = MAX_RECENT_GAMES
	}

	games, err := s.history.RecentGames(c.UserContext(), c.Params("userId"), n)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"games": games})
}
