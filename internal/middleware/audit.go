package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit writes one structured log line per settlement request. Settlement
// operations move real balances, so the trail records who asked for what and
// whether it landed, keyed by request id and idempotency key when present.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID, _ := c.Locals(requestIDHeader).(string); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if idemKey := c.Get(idempotencyKeyHeader); idemKey != "" {
			attrs = append(attrs, slog.String("idempotency_key", idemKey))
		}

		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("settlement request", attrs...)
			return err
		}

		logger.Info("settlement request", attrs...)
		return nil
	}
}
