package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DetectionResponse is a detection row plus the media URLs of its artifacts.
type DetectionResponse struct {
	datastore.Detection
	AudioURL       string `json:"audio_url,omitempty"`
	SpectrogramURL string `json:"spectrogram_url,omitempty"`
}

// GenerateResponse reports the outcome of an on-demand generation.
type GenerateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ReviewRequest is the body of a quality review update.
type ReviewRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
	Notes  string `json:"notes" validate:"max=4000"`
}

func newDetectionResponse(d datastore.Detection) DetectionResponse {
	return DetectionResponse{
		Detection:      d,
		AudioURL:       mediaURL(d.AudioSegmentPath),
		SpectrogramURL: mediaURL(d.SpectrogramPath),
	}
}

// mediaURL maps a stored artifact path onto the /media route.
func mediaURL(rel *string) string {
	if rel == nil || *rel == "" {
		return ""
	}
	return "/media/" + strings.TrimPrefix(filepath.ToSlash(*rel), "/")
}

// parseID reads the :id path parameter.
func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "detection id must be a positive integer")
	}
	return uint(id), nil
}

// parseFilter builds a detection filter from the query string.
func parseFilter(c echo.Context) (datastore.DetectionFilter, error) {
	f := datastore.DetectionFilter{
		Session: c.QueryParam("session"),
		Species: c.QueryParam("species"),
		Status:  datastore.QualityStatus(c.QueryParam("status")),
	}

	if f.Status != "" && !f.Status.Valid() {
		return f, echo.NewHTTPError(http.StatusBadRequest, "status must be pending, approved or rejected")
	}

	if v := c.QueryParam("min_confidence"); v != "" {
		conf, err := strconv.ParseFloat(v, 64)
		if err != nil || conf < 0 || conf > 1 {
			return f, echo.NewHTTPError(http.StatusBadRequest, "min_confidence must be a number between 0 and 1")
		}
		f.MinConfidence = conf
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, echo.NewHTTPError(http.StatusBadRequest, p.name+" must be a non-negative integer")
		}
		*p.dst = n
	}

	if v := c.QueryParam("processed"); v != "" {
		processed, err := strconv.ParseBool(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "processed must be a boolean")
		}
		f.OnlyProcessed = processed
	}

	return f, nil
}

// listSessions handles GET /api/v1/sessions.
func (s *Server) listSessions(c echo.Context) error {
	sessions, err := s.store.Sessions(c.Request().Context())
	if err != nil {
		return s.handleError(c, err, "failed to list sessions", 0)
	}
	if sessions == nil {
		sessions = []datastore.SessionSummary{}
	}
	return c.JSON(http.StatusOK, sessions)
}

// listDetections handles GET /api/v1/detections.
func (s *Server) listDetections(c echo.Context) error {
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	rows, err := s.store.ListDetections(c.Request().Context(), filter)
	if err != nil {
		return s.handleError(c, err, "failed to list detections", 0)
	}

	out := make([]DetectionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newDetectionResponse(rows[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// getDetection handles GET /api/v1/detections/:id.
func (s *Server) getDetection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	d, err := s.store.GetDetection(c.Request().Context(), id)
	if err != nil {
		return s.handleError(c, err, "failed to get detection", 0)
	}
	return c.JSON(http.StatusOK, newDetectionResponse(*d))
}

// generateArtifacts handles POST /api/v1/detections/:id/generate. The
// outcome is always reported in the body; the status code only reflects
// whether the request itself could be served.
func (s *Server) generateArtifacts(c echo.Context) error {
	if s.generator == nil {
		return s.handleError(c, nil, "artifact generation is not available", http.StatusServiceUnavailable)
	}

	id, err := parseID(c)
	if err != nil {
		return err
	}

	success, message := s.generator.ProcessOne(c.Request().Context(), id)
	s.log.WithContext(c.Request().Context()).Info("on-demand generation finished",
		logger.Uint64("detection_id", uint64(id)),
		logger.Bool("success", success),
		logger.String("message", message))

	return c.JSON(http.StatusOK, GenerateResponse{Success: success, Message: message})
}

// reviewDetection handles PATCH /api/v1/detections/:id/review.
func (s *Server) reviewDetection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid review body", http.StatusBadRequest)
	}
	if err := validate.Struct(&req); err != nil {
		return s.handleError(c, err, "invalid review body", http.StatusBadRequest)
	}

	ctx := c.Request().Context()
	n, err := s.store.UpdateQualityStatus(ctx, id, datastore.QualityStatus(req.Status), req.Notes)
	if err != nil {
		return s.handleError(c, err, "failed to update review", 0)
	}
	if n == 0 {
		return s.handleError(c, nil, "detection "+strconv.FormatUint(uint64(id), 10)+" not found", http.StatusNotFound)
	}

	d, err := s.store.GetDetection(ctx, id)
	if err != nil {
		return s.handleError(c, err, "failed to reload detection", 0)
	}
	return c.JSON(http.StatusOK, newDetectionResponse(*d))
}
