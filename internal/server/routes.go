package server

import (
	"context"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tower/internal/game"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Get("/health", s.healthHandler)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.App.Group("/api/v1")

	tower := api.Group("/tower")
	tower.Post("/bet", s.betHandler)
	tower.Post("/reveal", s.revealHandler)
	tower.Post("/cashout", s.cashoutHandler)
	tower.Get("/round/:id", s.roundHandler)
	tower.Get("/layouts", s.layoutsHandler)

	api.Get("/user/:userId/balance", s.getUserBalanceHandler)
	api.Post("/user/:userId/balance", s.setUserBalanceHandler)

	s.RegisterHistoryRoutes(api)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if strings.TrimSpace(c.Query("user_id")) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
		}
		return c.Next()
	})
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	disabled := map[string]string{"status": "disabled"}

	dbHealth, cacheHealth := disabled, disabled
	if s.db != nil {
		dbHealth = s.db.Health()
	}
	if s.cache != nil {
		cacheHealth = s.cache.Health()
	}

	return c.JSON(fiber.Map{
		"database": dbHealth,
		"cache":    cacheHealth,
		"game": fiber.Map{
			"status":            "running",
			"connected_clients": s.hub.GetClientCount(),
			"layouts":           len(s.manager.Layouts()),
		},
	})
}

// wsCommand is a play action sent over the socket. Identity comes from the
// connection, never from the message.
type wsCommand struct {
	Type        string  `json:"type"`
	RoundID     string  `json:"round_id"`
	Amount      float64 `json:"amount"`
	Layout      string  `json:"layout"`
	AutoCashout float64 `json:"auto_cashout"`
	ClientSeed  string  `json:"client_seed"`
	Level       int     `json:"level"`
	Slot        int     `json:"slot"`
}

// gameWebSocketHandler subscribes the connection to the settlement feed and
// accepts bet, reveal and cashout commands for the connected user.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := strings.TrimSpace(conn.Query("user_id"))
	log := s.log.With(zap.String("user_id", userID))

	client := s.hub.RegisterClient(conn, userID)
	defer s.hub.UnregisterClient(conn)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug("websocket closed", zap.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		reply := s.handleCommand(userID, cmd)
		if reply == nil {
			continue
		}
		data, err := json.Marshal(reply)
		if err != nil {
			log.Warn("marshal websocket reply", zap.Error(err))
			continue
		}
		if err := client.Send(data); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (s *FiberServer) handleCommand(userID string, cmd wsCommand) *game.WSMessage {
	ctx := context.Background()

	var (
		data interface{}
		err  error
	)
	switch cmd.Type {
	case "ping":
		return &game.WSMessage{Type: "pong"}
	case "bet":
		data, err = s.manager.Bet(ctx, game.BetRequest{
			UserID:      userID,
			Amount:      cmd.Amount,
			Layout:      cmd.Layout,
			AutoCashout: cmd.AutoCashout,
			ClientSeed:  cmd.ClientSeed,
		})
	case "reveal":
		data, err = s.manager.Reveal(ctx, game.RevealRequest{
			UserID:  userID,
			RoundID: cmd.RoundID,
			Level:   cmd.Level,
			Slot:    cmd.Slot,
		})
	case "cashout":
		data, err = s.manager.CashOut(ctx, game.CashoutRequest{UserID: userID, RoundID: cmd.RoundID})
	default:
		return nil
	}

	if err != nil {
		return &game.WSMessage{Type: "error", Data: fiber.Map{"command": cmd.Type, "error": s.publicError(err)}}
	}
	return &game.WSMessage{Type: cmd.Type + "_result", Data: data}
}
