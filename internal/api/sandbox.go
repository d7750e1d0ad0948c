package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nimbuside/nimbus/pkg/types"
)

// The optional ?provider= query pins an operation to one backend and
// bypasses session lookup, probing, and failover.

func (s *Server) createSandbox(c echo.Context) error {
	var opts types.CreateOptions
	if err := c.Bind(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
	}
	sb, err := s.manager.CreateSandbox(c.Request().Context(), opts, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, sb)
}

func (s *Server) listSandboxes(c echo.Context) error {
	filter := types.ListFilter{
		Status:    types.SandboxStatus(c.QueryParam("status")),
		Template:  c.QueryParam("template"),
		UserID:    c.QueryParam("userID"),
		ProjectID: c.QueryParam("projectID"),
	}
	sbs, err := s.manager.ListSandboxes(c.Request().Context(), filter, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	if sbs == nil {
		sbs = []types.Sandbox{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sandboxes": sbs})
}

func (s *Server) getSandbox(c echo.Context) error {
	sb, err := s.manager.GetSandbox(c.Request().Context(), c.Param("id"), c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sb)
}

func (s *Server) updateSandbox(c echo.Context) error {
	var opts types.UpdateOptions
	if err := c.Bind(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
	}
	sb, err := s.manager.UpdateSandbox(c.Request().Context(), c.Param("id"), opts, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sb)
}

func (s *Server) deleteSandbox(c echo.Context) error {
	if err := s.manager.DeleteSandbox(c.Request().Context(), c.Param("id"), c.QueryParam("provider")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) startSandbox(c echo.Context) error {
	sb, err := s.manager.StartSandbox(c.Request().Context(), c.Param("id"), c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sb)
}

func (s *Server) stopSandbox(c echo.Context) error {
	sb, err := s.manager.StopSandbox(c.Request().Context(), c.Param("id"), c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sb)
}

func (s *Server) restartSandbox(c echo.Context) error {
	sb, err := s.manager.RestartSandbox(c.Request().Context(), c.Param("id"), c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sb)
}

func (s *Server) createSnapshot(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
	}
	snap, err := s.manager.CreateSnapshot(c.Request().Context(), c.Param("id"), req.Name, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, snap)
}

func (s *Server) restoreSnapshot(c echo.Context) error {
	var opts types.RestoreOptions
	if err := c.Bind(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
	}
	err := s.manager.RestoreSnapshot(c.Request().Context(), c.Param("id"), c.Param("snapshotID"), opts, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) sandboxMetrics(c echo.Context) error {
	m, err := s.manager.GetMetrics(c.Request().Context(), c.Param("id"), c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	if m == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) sandboxLogs(c echo.Context) error {
	var opts types.LogOptions
	if err := echo.QueryParamsBinder(c).Int("limit", &opts.Limit).BindError(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
	}
	logs, err := s.manager.GetLogs(c.Request().Context(), c.Param("id"), opts, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	if logs == nil {
		logs = []types.LogEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"logs": logs})
}

func (s *Server) forwardPort(c echo.Context) error {
	var req struct {
		Port int `json:"port"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
	}
	fwd, err := s.manager.ForwardPort(c.Request().Context(), c.Param("id"), req.Port, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, fwd)
}
