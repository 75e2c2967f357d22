package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists each account as a single JSONB document so every
// mutation rewrites the whole document in one statement.
//
// Expected schema:
//
//	CREATE TABLE cdp_accounts (
//	    owner_id   TEXT PRIMARY KEY,
//	    stocks     JSONB NOT NULL DEFAULT '{}',
//	    etfs       JSONB NOT NULL DEFAULT '{}',
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed registry store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetAccount(ctx context.Context, ownerID string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT owner_id, stocks, etfs, updated_at
        FROM cdp_accounts WHERE owner_id = $1`, ownerID)
	return scanAccount(row)
}

func (s *PostgresStore) CreateAccount(ctx context.Context, ownerID string, stocks map[string]decimal.Decimal) (Account, error) {
	for sym, qty := range stocks {
		if qty.IsNegative() {
			return Account{}, fmt.Errorf("seed %s: %w", sym, ErrInsufficientBalance)
		}
	}
	if stocks == nil {
		stocks = map[string]decimal.Decimal{}
	}
	stocksJSON, err := json.Marshal(stocks)
	if err != nil {
		return Account{}, err
	}
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `INSERT INTO cdp_accounts (owner_id, stocks, etfs, updated_at)
        VALUES ($1, $2, '{}', $3) ON CONFLICT (owner_id) DO NOTHING`, ownerID, stocksJSON, now)
	if err != nil {
		return Account{}, err
	}
	if tag.RowsAffected() == 0 {
		return Account{}, ErrAccountExists
	}
	return Account{OwnerID: ownerID, Stocks: stocks, ETFs: map[string]decimal.Decimal{}, UpdatedAt: now}, nil
}

func (s *PostgresStore) AdjustStock(ctx context.Context, ownerID, symbol string, delta decimal.Decimal) (Account, error) {
	return s.Apply(ctx, ownerID, []Change{{Class: ClassStock, Symbol: symbol, Delta: delta}})
}

func (s *PostgresStore) AdjustETF(ctx context.Context, ownerID, symbol string, delta decimal.Decimal) (Account, error) {
	return s.Apply(ctx, ownerID, []Change{{Class: ClassETF, Symbol: symbol, Delta: delta}})
}

// Apply rewrites the account document under a row lock so the batch is applied
// in full or not at all.
func (s *PostgresStore) Apply(ctx context.Context, ownerID string, changes []Change) (Account, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT owner_id, stocks, etfs, updated_at
        FROM cdp_accounts WHERE owner_id = $1 FOR UPDATE`, ownerID)
	account, err := scanAccount(row)
	if err != nil {
		return Account{}, err
	}

	if err := applyChanges(&account, changes); err != nil {
		return Account{}, err
	}
	account.UpdatedAt = time.Now().UTC()

	stocksJSON, err := json.Marshal(account.Stocks)
	if err != nil {
		return Account{}, err
	}
	etfsJSON, err := json.Marshal(account.ETFs)
	if err != nil {
		return Account{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE cdp_accounts SET stocks = $2, etfs = $3, updated_at = $4
        WHERE owner_id = $1`, ownerID, stocksJSON, etfsJSON, account.UpdatedAt); err != nil {
		return Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT owner_id, stocks, etfs, updated_at
        FROM cdp_accounts ORDER BY owner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var account Account
	var stocksJSON, etfsJSON []byte
	if err := row.Scan(&account.OwnerID, &stocksJSON, &etfsJSON, &account.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	if err := json.Unmarshal(stocksJSON, &account.Stocks); err != nil {
		return Account{}, fmt.Errorf("decode stocks for %s: %w", account.OwnerID, err)
	}
	if err := json.Unmarshal(etfsJSON, &account.ETFs); err != nil {
		return Account{}, fmt.Errorf("decode etfs for %s: %w", account.OwnerID, err)
	}
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}
