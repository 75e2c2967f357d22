package coordinator

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/composition"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/registry"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/settlement"
)

// Handler exposes the settlement operations over HTTP.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler constructs a settlement handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

type operationRequest struct {
	OwnerID        string          `json:"owner_id"`
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	ActingIdentity string          `json:"acting_identity"`
}

type swapRequest struct {
	PartyA       string          `json:"party_a"`
	PartyB       string          `json:"party_b"`
	TokenSell    string          `json:"token_sell"`
	TokenBuy     string          `json:"token_buy"`
	SellQuantity decimal.Decimal `json:"sell_quantity"`
	BuyQuantity  decimal.Decimal `json:"buy_quantity"`
}

// CreateETF creates ETF shares from constituent stock holdings.
func (h *Handler) CreateETF(c *fiber.Ctx) error {
	var req operationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.coordinator.Execute(c.UserContext(), Request{
		Kind: KindCreateETF, OwnerID: req.OwnerID, Symbol: req.Symbol, Quantity: req.Quantity,
	})
	if err != nil {
		return settlementError(c, err)
	}
	res := result.CreateETF
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"operation_id": result.OperationID,
		"owner_id":     res.OwnerID,
		"etf_symbol":   res.ETFSymbol,
		"quantity":     res.Quantity,
		"deductions":   res.Deductions,
		"etf_balance":  res.ETFBalance,
		"completed_at": result.CompletedAt,
	})
}

// Tokenize converts offchain ETF shares into onchain tokens.
func (h *Handler) Tokenize(c *fiber.Ctx) error {
	return h.bridge(c, KindTokenize)
}

// Redeem converts onchain tokens back into offchain ETF shares.
func (h *Handler) Redeem(c *fiber.Ctx) error {
	return h.bridge(c, KindRedeem)
}

func (h *Handler) bridge(c *fiber.Ctx, kind Kind) error {
	var req operationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.coordinator.Execute(c.UserContext(), Request{
		Kind: kind, OwnerID: req.OwnerID, Symbol: req.Symbol,
		Quantity: req.Quantity, ActingIdentity: req.ActingIdentity,
	})
	if err != nil {
		return settlementError(c, err)
	}
	res := result.Bridge
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"operation_id":     result.OperationID,
		"owner_id":         res.OwnerID,
		"symbol":           res.Symbol,
		"quantity":         res.Quantity,
		"address":          res.Address,
		"tx_hash":          res.TxHash,
		"onchain_balance":  res.OnchainBalance,
		"offchain_balance": res.OffchainBalance,
		"completed_at":     result.CompletedAt,
	})
}

// Swap executes an atomic two-asset exchange between two parties.
func (h *Handler) Swap(c *fiber.Ctx) error {
	var req swapRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.coordinator.Execute(c.UserContext(), Request{
		Kind: KindSwap,
		Swap: settlement.SwapInput{
			PartyA: req.PartyA, PartyB: req.PartyB,
			TokenSell: req.TokenSell, TokenBuy: req.TokenBuy,
			SellQuantity: req.SellQuantity, BuyQuantity: req.BuyQuantity,
		},
	})
	if err != nil {
		return settlementError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"operation_id": result.OperationID,
		"tx_hashes":    result.Swap.TxHashes,
		"address_a":    result.Swap.AddressA,
		"address_b":    result.Swap.AddressB,
		"completed_at": result.CompletedAt,
	})
}

// settlementError maps the settlement error taxonomy onto HTTP responses.
// Indeterminate and partial-swap outcomes carry structure so callers can
// reconcile; they must never look like a clean failure.
func settlementError(c *fiber.Ctx, err error) error {
	var indeterminate *settlement.IndeterminateError
	if errors.As(err, &indeterminate) {
		return c.Status(http.StatusGatewayTimeout).JSON(fiber.Map{
			"outcome":    "indeterminate",
			"operation":  indeterminate.Operation,
			"pending_id": indeterminate.Pending.ID,
			"error":      indeterminate.Error(),
		})
	}
	var partial *settlement.SwapError
	if errors.As(err, &partial) {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{
			"outcome":        "partial_swap_failure",
			"failed_step":    partial.Step,
			"confirmed_legs": partial.Confirmed,
			"error":          partial.Error(),
		})
	}
	var reconciliation *settlement.ReconciliationError
	if errors.As(err, &reconciliation) {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"outcome": "reconciliation_required",
			"tx_hash": reconciliation.TxHash,
			"error":   reconciliation.Error(),
		})
	}

	switch {
	case errors.Is(err, registry.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, settlement.ErrInvalidQuantity),
		errors.Is(err, registry.ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, composition.ErrUnknownETF),
		errors.Is(err, settlement.ErrUnsupportedSymbol),
		errors.Is(err, chain.ErrInvalidAddress):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, settlement.ErrWalletNotBound):
		return fiber.NewError(http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, chain.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
