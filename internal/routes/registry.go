package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/composition"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/registry"
)

// RegisterRegistryRoutes wires the offchain registry read/seed endpoints.
func RegisterRegistryRoutes(r fiber.Router, store registry.Store, table *composition.Table) {
	r.Get("/registry/accounts", func(c *fiber.Ctx) error {
		accounts, err := store.ListAccounts(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"accounts": accounts})
	})

	r.Get("/registry/accounts/:ownerId", func(c *fiber.Ctx) error {
		account, err := store.GetAccount(c.UserContext(), c.Params("ownerId"))
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				return fiber.NewError(http.StatusNotFound, err.Error())
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(account)
	})

	r.Post("/registry/accounts", func(c *fiber.Ctx) error {
		var req struct {
			OwnerID string                     `json:"owner_id"`
			Stocks  map[string]decimal.Decimal `json:"stocks"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if req.OwnerID == "" {
			return fiber.NewError(http.StatusBadRequest, "owner_id is required")
		}
		account, err := store.CreateAccount(c.UserContext(), req.OwnerID, req.Stocks)
		if err != nil {
			switch {
			case errors.Is(err, registry.ErrAccountExists):
				return fiber.NewError(http.StatusConflict, err.Error())
			case errors.Is(err, registry.ErrInsufficientBalance):
				return fiber.NewError(http.StatusBadRequest, err.Error())
			default:
				return fiber.NewError(http.StatusInternalServerError, err.Error())
			}
		}
		return c.Status(http.StatusCreated).JSON(account)
	})

	r.Get("/registry/compositions", func(c *fiber.Ctx) error {
		symbols := table.Symbols()
		out := make(map[string]map[string]decimal.Decimal, len(symbols))
		for _, symbol := range symbols {
			comp, err := table.Get(symbol)
			if err != nil {
				return fiber.NewError(http.StatusInternalServerError, err.Error())
			}
			out[symbol] = comp.Constituents
		}
		return c.JSON(fiber.Map{"compositions": out})
	})
}
