package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nimbuside/nimbus/pkg/types"
)

type execRequest struct {
	Command string           `json:"command"`
	Options types.ExecOptions `json:"options"`
}

// execCommand runs a command in a sandbox. A non-zero exit comes back as
// a 200 with success=false; only infrastructure failures are errors.
func (s *Server) execCommand(c echo.Context) error {
	var req execRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
	}
	if req.Command == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "command is required"})
	}
	res, err := s.manager.ExecuteCommand(c.Request().Context(), c.Param("id"), req.Command, req.Options, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
