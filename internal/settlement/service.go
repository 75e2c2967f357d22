package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/composition"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/registry"
)

// DefaultConfirmTimeout bounds how long each ledger confirmation is awaited.
const DefaultConfirmTimeout = 60 * time.Second

// Service implements the four settlement operations bridging the offchain CDP
// registry and the onchain token ledger. Every precondition is checked before
// the first mutating call; onchain mutations are always confirmed before the
// matching registry write.
type Service struct {
	registry       registry.Store
	table          *composition.Table
	ledger         chain.Client
	logger         *slog.Logger
	confirmTimeout time.Duration
}

// NewService constructs a settlement service. A non-positive confirmTimeout
// falls back to DefaultConfirmTimeout.
func NewService(store registry.Store, table *composition.Table, ledger chain.Client, logger *slog.Logger, confirmTimeout time.Duration) *Service {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &Service{registry: store, table: table, ledger: ledger, logger: logger, confirmTimeout: confirmTimeout}
}

// CreateETFResult describes a successful offchain ETF share creation.
type CreateETFResult struct {
	OwnerID    string
	ETFSymbol  string
	Quantity   decimal.Decimal
	Deductions map[string]decimal.Decimal
	ETFBalance decimal.Decimal
}

// CreateETF converts constituent stock holdings into ETF shares, entirely
// offchain. Either every constituent is deducted and the ETF balance credited
// in one durable write, or nothing changes.
func (s *Service) CreateETF(ctx context.Context, ownerID, etfSymbol string, quantity decimal.Decimal) (CreateETFResult, error) {
	if !quantity.IsPositive() {
		return CreateETFResult{}, fmt.Errorf("create etf %s: %w", etfSymbol, ErrInvalidQuantity)
	}
	account, err := s.registry.GetAccount(ctx, ownerID)
	if err != nil {
		return CreateETFResult{}, err
	}
	comp, err := s.table.Get(etfSymbol)
	if err != nil {
		return CreateETFResult{}, err
	}

	// Check every constituent before touching anything, reporting the first
	// short one in symbol order so failures are deterministic.
	symbols := make([]string, 0, len(comp.Constituents))
	for sym := range comp.Constituents {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	deductions := make(map[string]decimal.Decimal, len(symbols))
	changes := make([]registry.Change, 0, len(symbols)+1)
	for _, sym := range symbols {
		required := comp.Constituents[sym].Mul(quantity)
		held := account.Stocks[sym]
		if held.LessThan(required) {
			return CreateETFResult{}, fmt.Errorf("constituent %s: need %s, have %s: %w",
				sym, required, held, registry.ErrInsufficientBalance)
		}
		deductions[sym] = required
		changes = append(changes, registry.Change{Class: registry.ClassStock, Symbol: sym, Delta: required.Neg()})
	}
	changes = append(changes, registry.Change{Class: registry.ClassETF, Symbol: etfSymbol, Delta: quantity})

	updated, err := s.registry.Apply(ctx, ownerID, changes)
	if err != nil {
		return CreateETFResult{}, err
	}

	s.logger.Info("etf shares created",
		"owner", ownerID, "etf", etfSymbol, "quantity", quantity.String())

	return CreateETFResult{
		OwnerID:    ownerID,
		ETFSymbol:  etfSymbol,
		Quantity:   quantity,
		Deductions: deductions,
		ETFBalance: updated.ETFs[etfSymbol],
	}, nil
}

// BridgeResult describes a successful Tokenize or Redeem.
type BridgeResult struct {
	OwnerID         string
	Symbol          string
	Quantity        decimal.Decimal
	Address         string
	TxHash          string
	OnchainBalance  decimal.Decimal
	OffchainBalance decimal.Decimal
}

// Tokenize converts offchain ETF shares into onchain tokens. The mint is
// submitted and confirmed before the registry is decremented: a failed or
// timed-out mint leaves the registry untouched, and a confirmed mint followed
// by a registry failure surfaces a ReconciliationError rather than being
// silently absorbed.
func (s *Service) Tokenize(ctx context.Context, ownerID, symbol string, quantity decimal.Decimal, actingIdentity string) (BridgeResult, error) {
	if !quantity.IsPositive() {
		return BridgeResult{}, fmt.Errorf("tokenize %s: %w", symbol, ErrInvalidQuantity)
	}
	if !s.table.Has(symbol) {
		return BridgeResult{}, fmt.Errorf("%s: %w", symbol, ErrUnsupportedSymbol)
	}
	account, err := s.registry.GetAccount(ctx, ownerID)
	if err != nil {
		return BridgeResult{}, err
	}
	if account.ETFs[symbol].LessThan(quantity) {
		return BridgeResult{}, fmt.Errorf("tokenize %s: need %s, have %s: %w",
			symbol, quantity, account.ETFs[symbol], registry.ErrInsufficientBalance)
	}
	address, err := s.resolveWallet(ctx, ownerID)
	if err != nil {
		return BridgeResult{}, err
	}

	amount := ToBaseUnits(quantity)
	pending, err := s.ledger.Submit(ctx, chain.Op{Kind: chain.OpMint, AssetID: symbol, To: address, Amount: amount})
	if err != nil {
		return BridgeResult{}, err
	}
	receipt, err := s.ledger.AwaitConfirmation(ctx, pending, s.confirmTimeout)
	if err != nil {
		if errors.Is(err, chain.ErrTimeout) {
			return BridgeResult{}, &IndeterminateError{Operation: "tokenize", Pending: pending, Err: err}
		}
		return BridgeResult{}, fmt.Errorf("mint %s %s for %s: %w", quantity, symbol, ownerID, err)
	}

	updated, err := s.registry.AdjustETF(ctx, ownerID, symbol, quantity.Neg())
	if err != nil {
		return BridgeResult{}, &ReconciliationError{
			Operation: "tokenize", OwnerID: ownerID, Symbol: symbol,
			Quantity: quantity, TxHash: receipt.TxHash, Err: err,
		}
	}

	onchain, err := s.ledger.BalanceOf(ctx, symbol, address)
	if err != nil {
		return BridgeResult{}, err
	}

	s.logger.Info("holdings tokenized",
		"owner", ownerID, "symbol", symbol, "quantity", quantity.String(),
		"acting", actingIdentity, "tx", receipt.TxHash)

	return BridgeResult{
		OwnerID:         ownerID,
		Symbol:          symbol,
		Quantity:        quantity,
		Address:         address,
		TxHash:          receipt.TxHash,
		OnchainBalance:  FromBaseUnits(onchain),
		OffchainBalance: updated.ETFs[symbol],
	}, nil
}

// Redeem converts onchain tokens back into offchain ETF shares. Sufficiency is
// checked against the confirmed onchain balance, never the registry, and the
// burn is confirmed before the registry is credited: shares are never credited
// for tokens not verifiably destroyed.
func (s *Service) Redeem(ctx context.Context, ownerID, symbol string, quantity decimal.Decimal, actingIdentity string) (BridgeResult, error) {
	if !quantity.IsPositive() {
		return BridgeResult{}, fmt.Errorf("redeem %s: %w", symbol, ErrInvalidQuantity)
	}
	if _, err := s.registry.GetAccount(ctx, ownerID); err != nil {
		return BridgeResult{}, err
	}
	address, err := s.resolveWallet(ctx, ownerID)
	if err != nil {
		return BridgeResult{}, err
	}

	amount := ToBaseUnits(quantity)
	held, err := s.ledger.BalanceOf(ctx, symbol, address)
	if err != nil {
		return BridgeResult{}, err
	}
	if held.Cmp(amount) < 0 {
		return BridgeResult{}, fmt.Errorf("redeem %s: need %s, have %s onchain: %w",
			symbol, quantity, FromBaseUnits(held), registry.ErrInsufficientBalance)
	}

	pending, err := s.ledger.Submit(ctx, chain.Op{Kind: chain.OpBurn, AssetID: symbol, From: address, Amount: amount})
	if err != nil {
		return BridgeResult{}, err
	}
	receipt, err := s.ledger.AwaitConfirmation(ctx, pending, s.confirmTimeout)
	if err != nil {
		if errors.Is(err, chain.ErrTimeout) {
			return BridgeResult{}, &IndeterminateError{Operation: "redeem", Pending: pending, Err: err}
		}
		return BridgeResult{}, fmt.Errorf("burn %s %s for %s: %w", quantity, symbol, ownerID, err)
	}

	updated, err := s.registry.AdjustETF(ctx, ownerID, symbol, quantity)
	if err != nil {
		return BridgeResult{}, &ReconciliationError{
			Operation: "redeem", OwnerID: ownerID, Symbol: symbol,
			Quantity: quantity, TxHash: receipt.TxHash, Err: err,
		}
	}

	onchain, err := s.ledger.BalanceOf(ctx, symbol, address)
	if err != nil {
		return BridgeResult{}, err
	}

	s.logger.Info("tokens redeemed",
		"owner", ownerID, "symbol", symbol, "quantity", quantity.String(),
		"acting", actingIdentity, "tx", receipt.TxHash)

	return BridgeResult{
		OwnerID:         ownerID,
		Symbol:          symbol,
		Quantity:        quantity,
		Address:         address,
		TxHash:          receipt.TxHash,
		OnchainBalance:  FromBaseUnits(onchain),
		OffchainBalance: updated.ETFs[symbol],
	}, nil
}

// SwapInput names the parties and legs of a two-asset onchain exchange.
type SwapInput struct {
	PartyA       string
	PartyB       string
	TokenSell    string
	TokenBuy     string
	SellQuantity decimal.Decimal
	BuyQuantity  decimal.Decimal
}

// SwapResult describes a completed swap.
type SwapResult struct {
	Input    SwapInput
	AddressA string
	AddressB string
	TxHashes map[SwapStep]string
}

// AtomicSwap exchanges sellQuantity of tokenSell (held by partyA) for
// buyQuantity of tokenBuy (held by partyB) via four sequential ledger
// operations, each confirmed before the next is submitted:
//
//  1. partyA approves partyB for sellQuantity of tokenSell
//  2. partyB approves partyA for buyQuantity of tokenBuy
//  3. partyB draws sellQuantity of tokenSell from partyA
//  4. partyA draws buyQuantity of tokenBuy from partyB
//
// The protocol is not atomic at the ledger level: a failure after any confirmed
// leg returns a SwapError naming the failed step so the caller can issue a
// revoking authorization. Nothing is rolled back automatically.
func (s *Service) AtomicSwap(ctx context.Context, input SwapInput) (SwapResult, error) {
	if !input.SellQuantity.IsPositive() || !input.BuyQuantity.IsPositive() {
		return SwapResult{}, fmt.Errorf("swap %s/%s: %w", input.TokenSell, input.TokenBuy, ErrInvalidQuantity)
	}
	addrA, err := s.resolveWallet(ctx, input.PartyA)
	if err != nil {
		return SwapResult{}, err
	}
	addrB, err := s.resolveWallet(ctx, input.PartyB)
	if err != nil {
		return SwapResult{}, err
	}

	sellAmount := ToBaseUnits(input.SellQuantity)
	buyAmount := ToBaseUnits(input.BuyQuantity)

	balanceA, err := s.ledger.BalanceOf(ctx, input.TokenSell, addrA)
	if err != nil {
		return SwapResult{}, err
	}
	if balanceA.Cmp(sellAmount) < 0 {
		return SwapResult{}, fmt.Errorf("%s holds %s of %s, needs %s: %w",
			input.PartyA, FromBaseUnits(balanceA), input.TokenSell, input.SellQuantity, registry.ErrInsufficientBalance)
	}
	balanceB, err := s.ledger.BalanceOf(ctx, input.TokenBuy, addrB)
	if err != nil {
		return SwapResult{}, err
	}
	if balanceB.Cmp(buyAmount) < 0 {
		return SwapResult{}, fmt.Errorf("%s holds %s of %s, needs %s: %w",
			input.PartyB, FromBaseUnits(balanceB), input.TokenBuy, input.BuyQuantity, registry.ErrInsufficientBalance)
	}

	legs := []struct {
		step SwapStep
		op   chain.Op
	}{
		{StepApproveSell, chain.Op{Kind: chain.OpApprove, AssetID: input.TokenSell, From: addrA, Spender: addrB, Amount: sellAmount}},
		{StepApproveBuy, chain.Op{Kind: chain.OpApprove, AssetID: input.TokenBuy, From: addrB, Spender: addrA, Amount: buyAmount}},
		{StepDrawSell, chain.Op{Kind: chain.OpTransfer, AssetID: input.TokenSell, From: addrA, To: addrB, Spender: addrB, Amount: sellAmount}},
		{StepDrawBuy, chain.Op{Kind: chain.OpTransfer, AssetID: input.TokenBuy, From: addrB, To: addrA, Spender: addrA, Amount: buyAmount}},
	}

	result := SwapResult{Input: input, AddressA: addrA, AddressB: addrB, TxHashes: make(map[SwapStep]string, len(legs))}
	var confirmed []SwapStep
	for _, leg := range legs {
		receipt, err := s.submitAndAwait(ctx, leg.op)
		if err != nil {
			if len(confirmed) == 0 {
				return SwapResult{}, fmt.Errorf("swap step %s: %w", leg.step, err)
			}
			return SwapResult{}, &SwapError{Step: leg.step, Confirmed: confirmed, Err: err}
		}
		confirmed = append(confirmed, leg.step)
		result.TxHashes[leg.step] = receipt.TxHash
	}

	s.logger.Info("atomic swap settled",
		"party_a", input.PartyA, "party_b", input.PartyB,
		"sell", input.TokenSell, "sell_quantity", input.SellQuantity.String(),
		"buy", input.TokenBuy, "buy_quantity", input.BuyQuantity.String())

	return result, nil
}

func (s *Service) submitAndAwait(ctx context.Context, op chain.Op) (chain.Receipt, error) {
	pending, err := s.ledger.Submit(ctx, op)
	if err != nil {
		return chain.Receipt{}, err
	}
	receipt, err := s.ledger.AwaitConfirmation(ctx, pending, s.confirmTimeout)
	if err != nil {
		if errors.Is(err, chain.ErrTimeout) {
			return chain.Receipt{}, &IndeterminateError{Operation: string(op.Kind), Pending: pending, Err: err}
		}
		return chain.Receipt{}, err
	}
	return receipt, nil
}

func (s *Service) resolveWallet(ctx context.Context, ownerID string) (string, error) {
	address, err := s.ledger.ResolveAddress(ctx, ownerID)
	if err != nil {
		if errors.Is(err, chain.ErrUnbound) {
			return "", fmt.Errorf("%s: %w", ownerID, ErrWalletNotBound)
		}
		return "", err
	}
	return address, nil
}
