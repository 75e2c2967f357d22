package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/coordinator"
)

// RegisterSettlementRoutes wires the four settlement operations.
func RegisterSettlementRoutes(r fiber.Router, h *coordinator.Handler) {
	r.Post("/create-etf", h.CreateETF)
	r.Post("/tokenize", h.Tokenize)
	r.Post("/redeem", h.Redeem)
	r.Post("/swap", h.Swap)
}
