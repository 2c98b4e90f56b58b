package middleware

import (
	"log"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

// RequestLogging writes one access-log line per request.
func RequestLogging() echo.MiddlewareFunc {
	return emw.RequestLoggerWithConfig(emw.RequestLoggerConfig{
		LogMethod:     true,
		LogURI:        true,
		LogStatus:     true,
		LogRemoteIP:   true,
		LogLatency:    true,
		LogValuesFunc: func(c echo.Context, v emw.RequestLoggerValues) error {
			log.Printf("[%s] %s %s - %d (%s)",
				v.Method, v.URI, v.RemoteIP, v.Status, v.Latency)
			return nil
		},
	})
}
