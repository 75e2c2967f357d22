package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/registry"
)

// Handler exposes wallet provisioning endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a wallet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type provisionRequest struct {
	OwnerID string `json:"owner_id"`
}

// Provision binds an onchain wallet address to the owner.
func (h *Handler) Provision(c *fiber.Ctx) error {
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.OwnerID == "" {
		return fiber.NewError(http.StatusBadRequest, "owner_id is required")
	}

	binding, err := h.service.Provision(c.UserContext(), req.OwnerID)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, chain.ErrUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	status := http.StatusCreated
	if binding.Existing {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"owner_id": binding.OwnerID,
		"address":  binding.Address,
		"existing": binding.Existing,
	})
}
