package api

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// serveMedia handles GET /media/*, streaming a stored artifact from the
// sandboxed artifact tree.
func (s *Server) serveMedia(c echo.Context) error {
	rel, err := url.PathUnescape(c.Param("*"))
	if err != nil || rel == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid media path")
	}
	return s.files.ServeFile(c, rel)
}
