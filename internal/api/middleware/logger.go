// Package middleware contains the HTTP middleware for the API server.
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sellerdesk/sellerdesk/internal/logger"
)

// Logger returns a middleware that logs HTTP requests
func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := map[string]interface{}{
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start).String(),
			"ip":      c.IP(),
			"method":  c.Method(),
			"path":    c.Path(),
		}
		if tenantID := TenantFromCtx(c); tenantID != 0 {
			fields["tenant_id"] = tenantID
		}
		if userID := UserFromCtx(c); userID != 0 {
			fields["user_id"] = userID
		}
		logger.InfoWithFields("request", fields)

		return err
	}
}
