package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/vitalpulse/internal/domain"
)

type sessionsResponse struct {
	Capacity         int              `json:"capacity"`
	Size             int              `json:"size"`
	BroadcastEnabled bool             `json:"broadcast_enabled"`
	Sessions         []domain.Session `json:"sessions"`
}

func (s *Server) handleListSessions(c echo.Context) error {
	sessions := s.deps.Sessions.Snapshot()
	return c.JSON(http.StatusOK, sessionsResponse{
		Capacity:         s.deps.Sessions.Capacity(),
		Size:             len(sessions),
		BroadcastEnabled: s.deps.Broadcast.Enabled(),
		Sessions:         sessions,
	})
}
