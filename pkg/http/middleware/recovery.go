package middleware

import (
	"log"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

// Recover converts handler panics into 500 responses and logs the stack.
func Recover() echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize:         4 << 10,
		DisableStackAll:   true,
		DisablePrintStack: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Printf("panic %s %s: %v\n%s", c.Request().Method, c.Path(), err, stack)
			return err
		},
	})
}
