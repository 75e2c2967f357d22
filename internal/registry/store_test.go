package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemory(),
		"file":   NewFile(filepath.Join(t.TempDir(), "registry.json")),
	}
}

func TestGetAccountNotFound(t *testing.T) {
	for name, store := range testStores(t) {
		if _, err := store.GetAccount(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestCreateAccountDuplicate(t *testing.T) {
	for name, store := range testStores(t) {
		ctx := context.Background()
		if _, err := store.CreateAccount(ctx, "AP", nil); err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}
		if _, err := store.CreateAccount(ctx, "AP", nil); !errors.Is(err, ErrAccountExists) {
			t.Fatalf("%s: expected ErrAccountExists, got %v", name, err)
		}
	}
}

func TestAdjustStockNeverNegative(t *testing.T) {
	for name, store := range testStores(t) {
		ctx := context.Background()
		if _, err := store.CreateAccount(ctx, "AP", map[string]decimal.Decimal{"A": decimal.NewFromInt(10)}); err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}
		if _, err := store.AdjustStock(ctx, "AP", "A", decimal.NewFromInt(-20)); !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("%s: expected ErrInsufficientBalance, got %v", name, err)
		}
		account, err := store.GetAccount(ctx, "AP")
		if err != nil {
			t.Fatalf("%s: get: %v", name, err)
		}
		if !account.Stocks["A"].Equal(decimal.NewFromInt(10)) {
			t.Fatalf("%s: rejected adjust mutated balance: %v", name, account.Stocks)
		}
	}
}

func TestApplyBatchAllOrNothing(t *testing.T) {
	for name, store := range testStores(t) {
		ctx := context.Background()
		if _, err := store.CreateAccount(ctx, "AP", map[string]decimal.Decimal{
			"A": decimal.NewFromInt(100),
			"B": decimal.NewFromInt(5),
		}); err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}

		_, err := store.Apply(ctx, "AP", []Change{
			{Class: ClassStock, Symbol: "A", Delta: decimal.NewFromInt(-50)},
			{Class: ClassStock, Symbol: "B", Delta: decimal.NewFromInt(-10)},
			{Class: ClassETF, Symbol: "ES3", Delta: decimal.NewFromInt(1)},
		})
		if !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("%s: expected ErrInsufficientBalance, got %v", name, err)
		}

		account, _ := store.GetAccount(ctx, "AP")
		if !account.Stocks["A"].Equal(decimal.NewFromInt(100)) || !account.Stocks["B"].Equal(decimal.NewFromInt(5)) {
			t.Fatalf("%s: partial batch applied: %v", name, account.Stocks)
		}
		if !account.ETFs["ES3"].IsZero() {
			t.Fatalf("%s: partial batch credited ETF: %v", name, account.ETFs)
		}
	}
}

func TestAdjustETFCreatesEntry(t *testing.T) {
	for name, store := range testStores(t) {
		ctx := context.Background()
		if _, err := store.CreateAccount(ctx, "AP", nil); err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}
		account, err := store.AdjustETF(ctx, "AP", "ES3", decimal.NewFromInt(7))
		if err != nil {
			t.Fatalf("%s: adjust: %v", name, err)
		}
		if !account.ETFs["ES3"].Equal(decimal.NewFromInt(7)) {
			t.Fatalf("%s: expected 7, got %v", name, account.ETFs)
		}
	}
}

func TestReturnedAccountIsACopy(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	if _, err := store.CreateAccount(ctx, "AP", map[string]decimal.Decimal{"A": decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	account, _ := store.GetAccount(ctx, "AP")
	account.Stocks["A"] = decimal.NewFromInt(9999)

	fresh, _ := store.GetAccount(ctx, "AP")
	if !fresh.Stocks["A"].Equal(decimal.NewFromInt(10)) {
		t.Fatalf("caller mutation leaked into store: %v", fresh.Stocks)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	ctx := context.Background()

	store := NewFile(path)
	if _, err := store.CreateAccount(ctx, "AP", map[string]decimal.Decimal{"A": decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AdjustETF(ctx, "AP", "ES3", decimal.NewFromInt(3)); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	reopened := NewFile(path)
	account, err := reopened.GetAccount(ctx, "AP")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if !account.Stocks["A"].Equal(decimal.NewFromInt(10)) || !account.ETFs["ES3"].Equal(decimal.NewFromInt(3)) {
		t.Fatalf("state lost across reopen: %+v", account)
	}
}
