package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/copassenger-api/internal/metrics"
)

// RequestLogger logs every request and records it in m when m is non-nil.
func RequestLogger(log *zap.SugaredLogger, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			// the error handler has not run yet; mirror its status
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		if m != nil {
			m.Requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
			m.Duration.WithLabelValues(c.Method(), route).Observe(latency.Seconds())
		}

		fields := []interface{}{
			"method", c.Method(),
			"path", c.Path(),
			"ip", c.IP(),
			"status", status,
			"latency", latency,
		}
		if err != nil {
			log.Errorw("HTTP Request Error", append(fields, "error", err)...)
			return err
		}
		log.Infow("HTTP Request", fields...)
		return nil
	}
}
