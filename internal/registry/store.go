package registry

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound occurs when an owner has never been referenced and the
	// operation requires the account to exist.
	ErrNotFound = errors.New("account not found")

	// ErrAccountExists indicates an attempt to create an owner that is
	// already registered.
	ErrAccountExists = errors.New("account already exists")

	// ErrInsufficientBalance occurs when applying a delta would drive a
	// stock or ETF quantity negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Store defines the contract implemented by registry backends (e.g. Postgres).
// Every mutation is persisted all-or-nothing: either the full mutated account
// document is durably written or no partial write is observable.
type Store interface {
	GetAccount(ctx context.Context, ownerID string) (Account, error)
	CreateAccount(ctx context.Context, ownerID string, stocks map[string]decimal.Decimal) (Account, error)
	AdjustStock(ctx context.Context, ownerID, symbol string, delta decimal.Decimal) (Account, error)
	AdjustETF(ctx context.Context, ownerID, symbol string, delta decimal.Decimal) (Account, error)
	// Apply applies every change or none of them. A single insufficient
	// balance anywhere in the batch rejects the whole batch.
	Apply(ctx context.Context, ownerID string, changes []Change) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}

func applyChanges(account *Account, changes []Change) error {
	for _, ch := range changes {
		balances := account.Stocks
		if ch.Class == ClassETF {
			balances = account.ETFs
		}
		next := balances[ch.Symbol].Add(ch.Delta)
		if next.IsNegative() {
			return ErrInsufficientBalance
		}
		balances[ch.Symbol] = next
	}
	return nil
}
