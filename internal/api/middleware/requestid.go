package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// HeaderRequestID carries the request identifier in both directions.
const HeaderRequestID = "X-Request-ID"

// requestIDKey is the echo context key holding the request identifier.
const requestIDKey = "request_id"

// NewRequestID takes the caller's X-Request-ID or generates a short one,
// echoes it back and attaches it to the request context as the trace ID so
// every log line of the request carries it.
func NewRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(HeaderRequestID)
			if id == "" || len(id) > 64 {
				id = uuid.New().String()[:8]
			}

			c.Set(requestIDKey, id)
			c.Response().Header().Set(HeaderRequestID, id)
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
			return next(c)
		}
	}
}

// RequestID returns the identifier assigned by NewRequestID, if any.
func RequestID(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}
