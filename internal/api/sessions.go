package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nimbuside/nimbus/pkg/types"
)

func (s *Server) listSessions(c echo.Context) error {
	filter := types.SessionFilter{
		Provider:  c.QueryParam("provider"),
		UserID:    c.QueryParam("userID"),
		ProjectID: c.QueryParam("projectID"),
	}
	sessions := s.manager.GetActiveSessions(filter)
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) getSession(c echo.Context) error {
	session, ok := s.manager.GetSessionByID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, session)
}

func (s *Server) listProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"providers": s.manager.GetAvailableProviders()})
}

func (s *Server) providersHealth(c echo.Context) error {
	results := s.manager.HealthCheckProviders(c.Request().Context())
	out := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			out[name] = err.Error()
		} else {
			out[name] = "ok"
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"providers": out})
}

func (s *Server) providerCapabilities(c echo.Context) error {
	caps, err := s.manager.GetProviderCapabilities(c.Param("name"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, caps)
}
