package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FileStore persists the registry as a single JSON document keyed by owner id,
// the same shape the CDP registry scripts keep on disk. Every mutation rewrites
// the document through a temp-file rename so a crash mid-write never leaves a
// half-written registry observable.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFile opens (or lazily creates) a file-backed registry at path.
func NewFile(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) GetAccount(_ context.Context, ownerID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Account{}, err
	}
	account, ok := doc[ownerID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account.Clone(), nil
}

func (s *FileStore) CreateAccount(_ context.Context, ownerID string, stocks map[string]decimal.Decimal) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Account{}, err
	}
	if _, exists := doc[ownerID]; exists {
		return Account{}, ErrAccountExists
	}
	account := Account{
		OwnerID:   ownerID,
		Stocks:    make(map[string]decimal.Decimal, len(stocks)),
		ETFs:      map[string]decimal.Decimal{},
		UpdatedAt: time.Now().UTC(),
	}
	for sym, qty := range stocks {
		if qty.IsNegative() {
			return Account{}, fmt.Errorf("seed %s: %w", sym, ErrInsufficientBalance)
		}
		account.Stocks[sym] = qty
	}
	doc[ownerID] = account
	if err := s.save(doc); err != nil {
		return Account{}, err
	}
	return account.Clone(), nil
}

func (s *FileStore) AdjustStock(ctx context.Context, ownerID, symbol string, delta decimal.Decimal) (Account, error) {
	return s.Apply(ctx, ownerID, []Change{{Class: ClassStock, Symbol: symbol, Delta: delta}})
}

func (s *FileStore) AdjustETF(ctx context.Context, ownerID, symbol string, delta decimal.Decimal) (Account, error) {
	return s.Apply(ctx, ownerID, []Change{{Class: ClassETF, Symbol: symbol, Delta: delta}})
}

func (s *FileStore) Apply(_ context.Context, ownerID string, changes []Change) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Account{}, err
	}
	stored, ok := doc[ownerID]
	if !ok {
		return Account{}, ErrNotFound
	}
	account := stored.Clone()
	if err := applyChanges(&account, changes); err != nil {
		return Account{}, err
	}
	account.UpdatedAt = time.Now().UTC()
	doc[ownerID] = account
	if err := s.save(doc); err != nil {
		return Account{}, err
	}
	return account.Clone(), nil
}

func (s *FileStore) ListAccounts(_ context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(doc))
	for _, account := range doc {
		out = append(out, account.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (s *FileStore) load() (map[string]Account, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Account{}, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	doc := map[string]Account{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	for ownerID, account := range doc {
		account.OwnerID = ownerID
		if account.Stocks == nil {
			account.Stocks = map[string]decimal.Decimal{}
		}
		if account.ETFs == nil {
			account.ETFs = map[string]decimal.Decimal{}
		}
		doc[ownerID] = account
	}
	return doc, nil
}

func (s *FileStore) save(doc map[string]Account) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit registry: %w", err)
	}
	return nil
}
