package server

import (
	"context"
	"encoding/json"

	"feedline/internal/config"
	"feedline/internal/middleware"
	"feedline/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// wsTokenFromQuery lets browser clients, which cannot set headers on an
// upgrade, pass their bearer token as ?token=.
func (s *Server) wsTokenFromQuery() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.authService.Strategy().Name() != config.AuthStrategyToken {
			return c.Next()
		}
		if token := c.Query("token"); token != "" && c.Get(fiber.HeaderAuthorization) == "" {
			c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
		return c.Next()
	}
}

func (s *Server) requireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// FeedSocket streams every feed event to the connected listener. Anonymous
// listeners are allowed and registered under user 0.
func (s *Server) FeedSocket() fiber.Handler {
	logger := observability.NewWSLogger(s.hub.Name())
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(middleware.UserLocal).(uint)

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			logger.LogError(context.Background(), userID, err, "register")
			msg, _ := json.Marshal(map[string]string{"error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}
