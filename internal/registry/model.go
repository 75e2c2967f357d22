package registry

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the offchain CDP registry document for a single owner: traditional
// stock holdings and ETF shares, keyed by security symbol. Quantities are
// arbitrary-precision decimals and never negative.
type Account struct {
	OwnerID   string                     `json:"owner_id"`
	Stocks    map[string]decimal.Decimal `json:"stocks"`
	ETFs      map[string]decimal.Decimal `json:"etfs"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Clone returns a deep copy so callers can never mutate stored state directly.
func (a Account) Clone() Account {
	out := Account{OwnerID: a.OwnerID, UpdatedAt: a.UpdatedAt}
	out.Stocks = make(map[string]decimal.Decimal, len(a.Stocks))
	for sym, qty := range a.Stocks {
		out.Stocks[sym] = qty
	}
	out.ETFs = make(map[string]decimal.Decimal, len(a.ETFs))
	for sym, qty := range a.ETFs {
		out.ETFs[sym] = qty
	}
	return out
}

// Class distinguishes the two balance maps held per account.
type Class string

const (
	ClassStock Class = "stock"
	ClassETF   Class = "etf"
)

// Change is a single signed balance delta, applied as part of a batch.
type Change struct {
	Class  Class
	Symbol string
	Delta  decimal.Decimal
}
