package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"tower/internal/game"
)

// Tower handlers

func (s *FiberServer) betHandler(c *fiber.Ctx) error {
	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "User ID is required")
	}

	resp, err := s.manager.Bet(c.UserContext(), req)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) revealHandler(c *fiber.Ctx) error {
	var req game.RevealRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" || req.RoundID == "" {
		return badRequest(c, "User ID and Round ID are required")
	}

	resp, err := s.manager.Reveal(c.UserContext(), req)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	var req game.CashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" || req.RoundID == "" {
		return badRequest(c, "User ID and Round ID are required")
	}

	resp, err := s.manager.CashOut(c.UserContext(), req)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) roundHandler(c *fiber.Ctx) error {
	view, err := s.manager.Round(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(view)
}

func (s *FiberServer) layoutsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"default": s.cfg.Layout,
		"layouts": s.manager.Layouts(),
	})
}

// User balance handlers

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	balance, err := s.manager.Balance(c.UserContext(), userID)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
	})
}

// setUserBalanceHandler sets a user's balance (for testing/admin)
func (s *FiberServer) setUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if body.Balance < 0 {
		return badRequest(c, "Balance cannot be negative")
	}

	if err := s.manager.SetBalance(c.UserContext(), userID, body.Balance); err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": body.Balance,
		"message": "Balance updated successfully",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// errorStatus maps game errors onto HTTP statuses. Anything unrecognized is
// an infrastructure failure.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, game.ErrRoundNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrNotOwner):
		return fiber.StatusForbidden
	case errors.Is(err, game.ErrInvalidState),
		errors.Is(err, game.ErrWrongLevel),
		errors.Is(err, game.ErrAlreadyRevealed):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrInvalidConfig),
		errors.Is(err, game.ErrOutOfRange),
		errors.Is(err, game.ErrInsufficientBalance):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// publicError is the message shown to callers; infrastructure details stay
// in the log.
func (s *FiberServer) publicError(err error) string {
	if errorStatus(err) == fiber.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		return "Internal server error"
	}
	return err.Error()
}

func (s *FiberServer) errorResponse(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{"error": s.publicError(err)})
}
