package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// HTTPRecorder receives one observation per completed request.
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, statusCode int, seconds float64, size int64)
}

// NewMetrics records request counts, latency and response size. Requests
// are labelled by route pattern so path parameters do not explode the
// label space.
func NewMetrics(rec HTTPRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rec == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}

			path := c.Path()
			if path == "" || strings.HasPrefix(path, "/*") {
				path = "unmatched"
			}

			rec.RecordHTTPRequest(c.Request().Method, path, status, time.Since(start).Seconds(), c.Response().Size)
			return err
		}
	}
}
