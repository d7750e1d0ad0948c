package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nimbuside/nimbus/pkg/types"
)

func (s *Server) listFiles(c echo.Context) error {
	entries, err := s.manager.ListFiles(c.Request().Context(), c.Param("id"), c.QueryParam("path"), c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	if entries == nil {
		entries = []types.FileEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) readFile(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path query parameter is required"})
	}
	content, err := s.manager.ReadFile(c.Request().Context(), c.Param("id"), path, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.String(http.StatusOK, content)
}

// writeFile takes the raw request body as content, matching how editors
// stream saves.
func (s *Server) writeFile(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path query parameter is required"})
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read request body: " + err.Error()})
	}
	if err := s.manager.WriteFile(c.Request().Context(), c.Param("id"), path, string(body), c.QueryParam("provider")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteFile(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path query parameter is required"})
	}
	if err := s.manager.DeleteFile(c.Request().Context(), c.Param("id"), path, c.QueryParam("provider")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) makeDirectory(c echo.Context) error {
	var req struct {
		Path string `json:"path"`
	}
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path is required"})
	}
	if err := s.manager.CreateDirectory(c.Request().Context(), c.Param("id"), req.Path, c.QueryParam("provider")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) uploadFiles(c echo.Context) error {
	var req struct {
		Files []types.FileUpload `json:"files"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
	}
	if err := s.manager.UploadFiles(c.Request().Context(), c.Param("id"), req.Files, c.QueryParam("provider")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) downloadFiles(c echo.Context) error {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
	}
	files, err := s.manager.DownloadFiles(c.Request().Context(), c.Param("id"), req.Paths, c.QueryParam("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"files": files})
}
