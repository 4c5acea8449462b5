package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/processing"
)

// StatisticsResponse combines pipeline progress with review and
// collection summaries.
type StatisticsResponse struct {
	Processing *processing.Statistics  `json:"processing,omitempty"`
	Quality    datastore.QualityCounts `json:"quality"`
	Overview   datastore.Overview      `json:"overview"`
}

// statistics handles GET /api/v1/statistics.
func (s *Server) statistics(c echo.Context) error {
	ctx := c.Request().Context()
	var resp StatisticsResponse

	if s.generator != nil {
		stats, err := s.generator.GetStatistics(ctx)
		if err != nil {
			return s.handleError(c, err, "failed to collect processing statistics", 0)
		}
		resp.Processing = &stats
	}

	quality, err := s.store.QualityCounts(ctx)
	if err != nil {
		return s.handleError(c, err, "failed to count review states", 0)
	}
	resp.Quality = quality

	overview, err := s.store.Overview(ctx)
	if err != nil {
		return s.handleError(c, err, "failed to build overview", 0)
	}
	if overview.TopSpecies == nil {
		overview.TopSpecies = []datastore.SpeciesCount{}
	}
	resp.Overview = overview

	return c.JSON(http.StatusOK, resp)
}
