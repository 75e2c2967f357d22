package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/settlement"
)

// RegisterChainRoutes wires onchain read endpoints.
func RegisterChainRoutes(r fiber.Router, ledger chain.Client) {
	r.Get("/chain/balances/:ownerId/:asset", func(c *fiber.Ctx) error {
		ownerID := c.Params("ownerId")
		asset := c.Params("asset")

		address, err := ledger.ResolveAddress(c.UserContext(), ownerID)
		if err != nil {
			if errors.Is(err, chain.ErrUnbound) {
				return fiber.NewError(http.StatusNotFound, err.Error())
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}

		balance, err := ledger.BalanceOf(c.UserContext(), asset, address)
		if err != nil {
			switch {
			case errors.Is(err, chain.ErrInvalidAddress):
				return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
			case errors.Is(err, chain.ErrUnavailable):
				return fiber.NewError(http.StatusServiceUnavailable, err.Error())
			default:
				return fiber.NewError(http.StatusInternalServerError, err.Error())
			}
		}

		return c.JSON(fiber.Map{
			"owner_id":   ownerID,
			"address":    address,
			"asset":      asset,
			"base_units": balance.String(),
			"quantity":   settlement.FromBaseUnits(balance),
		})
	})
}
