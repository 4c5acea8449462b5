package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	mw "github.com/tphakala/birdnet-artifacts/internal/api/middleware"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id,omitempty"` // request ID, for matching log lines
}

// statusFor maps an error category onto an HTTP status.
func statusFor(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryNotFound, errors.CategorySourceNotFound:
		return http.StatusNotFound
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryBackendUnavailable:
		return http.StatusServiceUnavailable
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// handleError logs err and writes it as an ErrorResponse. A code of 0
// derives the status from the error category.
func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	if code == 0 {
		code = statusFor(err)
	}

	resp := ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: mw.RequestID(c),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	log := s.log.WithContext(c.Request().Context())
	fields := []logger.Field{
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Debug("API request rejected", fields...)
	}

	return c.JSON(code, resp)
}
