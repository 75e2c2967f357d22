package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemory creates a concurrency-safe in-memory registry used by tests and the
// in-process demo CLI.
func NewMemory() Store {
	return &memoryStore{accounts: make(map[string]Account)}
}

func (s *memoryStore) GetAccount(_ context.Context, ownerID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[ownerID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account.Clone(), nil
}

func (s *memoryStore) CreateAccount(_ context.Context, ownerID string, stocks map[string]decimal.Decimal) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[ownerID]; exists {
		return Account{}, ErrAccountExists
	}
	account := Account{
		OwnerID:   ownerID,
		Stocks:    make(map[string]decimal.Decimal, len(stocks)),
		ETFs:      make(map[string]decimal.Decimal),
		UpdatedAt: time.Now().UTC(),
	}
	for sym, qty := range stocks {
		if qty.IsNegative() {
			return Account{}, ErrInsufficientBalance
		}
		account.Stocks[sym] = qty
	}
	s.accounts[ownerID] = account
	return account.Clone(), nil
}

func (s *memoryStore) AdjustStock(ctx context.Context, ownerID, symbol string, delta decimal.Decimal) (Account, error) {
	return s.Apply(ctx, ownerID, []Change{{Class: ClassStock, Symbol: symbol, Delta: delta}})
}

func (s *memoryStore) AdjustETF(ctx context.Context, ownerID, symbol string, delta decimal.Decimal) (Account, error) {
	return s.Apply(ctx, ownerID, []Change{{Class: ClassETF, Symbol: symbol, Delta: delta}})
}

func (s *memoryStore) Apply(_ context.Context, ownerID string, changes []Change) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.accounts[ownerID]
	if !ok {
		return Account{}, ErrNotFound
	}
	// Mutate a copy so a rejected batch leaves the stored document untouched.
	account := stored.Clone()
	if err := applyChanges(&account, changes); err != nil {
		return Account{}, err
	}
	account.UpdatedAt = time.Now().UTC()
	s.accounts[ownerID] = account
	return account.Clone(), nil
}

func (s *memoryStore) ListAccounts(_ context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, account.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}
