package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/composition"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/logging"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/registry"
)

func newTestTable(t *testing.T) *composition.Table {
	t.Helper()
	table, err := composition.New(map[string]map[string]decimal.Decimal{
		"ES3": {"A": decimal.NewFromInt(5), "B": decimal.NewFromInt(2)},
	})
	if err != nil {
		t.Fatalf("build composition table: %v", err)
	}
	return table
}

func newTestEnv(t *testing.T) (*Service, registry.Store, *chain.Sim) {
	t.Helper()
	store := registry.NewMemory()
	sim := chain.NewSim(chain.SimConfig{})
	t.Cleanup(sim.Close)
	svc := NewService(store, newTestTable(t), sim, logging.Discard(), 2*time.Second)
	return svc, store, sim
}

func seedAP(t *testing.T, store registry.Store) {
	t.Helper()
	_, err := store.CreateAccount(context.Background(), "AP", map[string]decimal.Decimal{
		"A": decimal.NewFromInt(1000),
		"B": decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("seed AP: %v", err)
	}
}

func bindWallet(t *testing.T, sim *chain.Sim, ownerID string) string {
	t.Helper()
	ctx := context.Background()
	address := chain.DeriveAddress(ownerID)
	pending, err := sim.Submit(ctx, chain.Op{Kind: chain.OpBind, OwnerID: ownerID, To: address})
	if err != nil {
		t.Fatalf("submit bind for %s: %v", ownerID, err)
	}
	if _, err := sim.AwaitConfirmation(ctx, pending, time.Second); err != nil {
		t.Fatalf("confirm bind for %s: %v", ownerID, err)
	}
	return address
}

func mintTokens(t *testing.T, sim *chain.Sim, assetID, address string, quantity decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	pending, err := sim.Submit(ctx, chain.Op{Kind: chain.OpMint, AssetID: assetID, To: address, Amount: ToBaseUnits(quantity)})
	if err != nil {
		t.Fatalf("submit mint: %v", err)
	}
	if _, err := sim.AwaitConfirmation(ctx, pending, time.Second); err != nil {
		t.Fatalf("confirm mint: %v", err)
	}
}

func TestCreateETFSuccess(t *testing.T) {
	svc, store, _ := newTestEnv(t)
	seedAP(t, store)

	res, err := svc.CreateETF(context.Background(), "AP", "ES3", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("create etf: %v", err)
	}

	if !res.ETFBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected ETF balance 100, got %s", res.ETFBalance)
	}
	if !res.Deductions["A"].Equal(decimal.NewFromInt(500)) || !res.Deductions["B"].Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected deductions: %v", res.Deductions)
	}

	account, err := store.GetAccount(context.Background(), "AP")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !account.Stocks["A"].Equal(decimal.NewFromInt(500)) || !account.Stocks["B"].Equal(decimal.NewFromInt(300)) {
		t.Fatalf("unexpected stocks after create: %v", account.Stocks)
	}
	if !account.ETFs["ES3"].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected ETF balance: %v", account.ETFs)
	}
}

func TestCreateETFConservation(t *testing.T) {
	svc, store, _ := newTestEnv(t)
	seedAP(t, store)

	qty := decimal.NewFromInt(60)
	res, err := svc.CreateETF(context.Background(), "AP", "ES3", qty)
	if err != nil {
		t.Fatalf("create etf: %v", err)
	}

	// Deducted quantity divided by the per-share ratio recovers the share
	// count for every constituent.
	ratios := map[string]decimal.Decimal{"A": decimal.NewFromInt(5), "B": decimal.NewFromInt(2)}
	for sym, ratio := range ratios {
		if !res.Deductions[sym].Div(ratio).Equal(qty) {
			t.Fatalf("constituent %s: deduction %s / ratio %s != %s", sym, res.Deductions[sym], ratio, qty)
		}
	}
}

func TestCreateETFSecondCallShortOnA(t *testing.T) {
	svc, store, _ := newTestEnv(t)
	seedAP(t, store)

	ctx := context.Background()
	if _, err := svc.CreateETF(ctx, "AP", "ES3", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// 200 more shares needs A: 1000 against the remaining 500.
	_, err := svc.CreateETF(ctx, "AP", "ES3", decimal.NewFromInt(200))
	if !errors.Is(err, registry.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	account, _ := store.GetAccount(ctx, "AP")
	if !account.Stocks["A"].Equal(decimal.NewFromInt(500)) || !account.Stocks["B"].Equal(decimal.NewFromInt(300)) {
		t.Fatalf("failed create mutated stocks: %v", account.Stocks)
	}
	if !account.ETFs["ES3"].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("failed create mutated ETF balance: %v", account.ETFs)
	}
}

func TestCreateETFAllOrNothingOnSecondConstituent(t *testing.T) {
	// A is plentiful, B is short: nothing may change.
	store := registry.NewMemory()
	sim := chain.NewSim(chain.SimConfig{})
	t.Cleanup(sim.Close)
	table, err := composition.New(map[string]map[string]decimal.Decimal{
		"ES3": {"A": decimal.NewFromInt(1), "B": decimal.NewFromInt(100)},
	})
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	svc := NewService(store, table, sim, logging.Discard(), time.Second)

	ctx := context.Background()
	if _, err := store.CreateAccount(ctx, "AP", map[string]decimal.Decimal{
		"A": decimal.NewFromInt(1000),
		"B": decimal.NewFromInt(50),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err = svc.CreateETF(ctx, "AP", "ES3", decimal.NewFromInt(1))
	if !errors.Is(err, registry.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	account, _ := store.GetAccount(ctx, "AP")
	if !account.Stocks["A"].Equal(decimal.NewFromInt(1000)) || !account.Stocks["B"].Equal(decimal.NewFromInt(50)) {
		t.Fatalf("partial deduction occurred: %v", account.Stocks)
	}
	if !account.ETFs["ES3"].IsZero() {
		t.Fatalf("ETF balance credited on failure: %v", account.ETFs)
	}
}

func TestCreateETFPreconditions(t *testing.T) {
	svc, store, _ := newTestEnv(t)
	seedAP(t, store)
	ctx := context.Background()

	if _, err := svc.CreateETF(ctx, "AP", "ES3", decimal.Zero); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("zero quantity: expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.CreateETF(ctx, "ghost", "ES3", decimal.NewFromInt(1)); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("missing owner: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.CreateETF(ctx, "AP", "XYZ", decimal.NewFromInt(1)); !errors.Is(err, composition.ErrUnknownETF) {
		t.Fatalf("unknown etf: expected ErrUnknownETF, got %v", err)
	}
}

func TestTokenizeSuccess(t *testing.T) {
	svc, store, sim := newTestEnv(t)
	seedAP(t, store)
	address := bindWallet(t, sim, "AP")
	ctx := context.Background()

	if _, err := svc.CreateETF(ctx, "AP", "ES3", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("create etf: %v", err)
	}

	res, err := svc.Tokenize(ctx, "AP", "ES3", decimal.NewFromInt(50), "adminKey")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if !res.OffchainBalance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected offchain 50, got %s", res.OffchainBalance)
	}
	if !res.OnchainBalance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected onchain 50, got %s", res.OnchainBalance)
	}

	onchain, err := sim.BalanceOf(ctx, "ES3", address)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	if onchain.Cmp(ToBaseUnits(decimal.NewFromInt(50))) != 0 {
		t.Fatalf("expected 50 tokens at fixed point, got %s", onchain)
	}
}

func TestTokenizeRejectsRawStock(t *testing.T) {
	svc, store, sim := newTestEnv(t)
	seedAP(t, store)
	bindWallet(t, sim, "AP")

	_, err := svc.Tokenize(context.Background(), "AP", "A", decimal.NewFromInt(10), "adminKey")
	if !errors.Is(err, ErrUnsupportedSymbol) {
		t.Fatalf("expected ErrUnsupportedSymbol, got %v", err)
	}
}

func TestTokenizeRequiresBoundWallet(t *testing.T) {
	svc, store, _ := newTestEnv(t)
	seedAP(t, store)
	ctx := context.Background()

	if _, err := svc.CreateETF(ctx, "AP", "ES3", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("create etf: %v", err)
	}
	_, err := svc.Tokenize(ctx, "AP", "ES3", decimal.NewFromInt(1), "adminKey")
	if !errors.Is(err, ErrWalletNotBound) {
		t.Fatalf("expected ErrWalletNotBound, got %v", err)
	}
}

func TestTokenizeMintFailureLeavesRegistryUntouched(t *testing.T) {
	svc, store, sim := newTestEnv(t)
	seedAP(t, store)
	bindWallet(t, sim, "AP")
	ctx := context.Background()

	if _, err := svc.CreateETF(ctx, "AP", "ES3", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("create etf: %v", err)
	}

	sim.FailNextOp("mint reverted")
	_, err := svc.Tokenize(ctx, "AP", "ES3", decimal.NewFromInt(50), "adminKey")
	if !errors.Is(err, chain.ErrRejected) {
		t.Fatalf("expected rejected mint, got %v", err)
	}

	account, _ := store.GetAccount(ctx, "AP")
	if !account.ETFs["ES3"].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("registry decremented despite failed mint: %v", account.ETFs)
	}
}

func TestTokenizeTimeoutIsIndeterminate(t *testing.T) {
	store := registry.NewMemory()
	sim := chain.NewSim(chain.SimConfig{})
	t.Cleanup(sim.Close)
	svc := NewService(store, newTestTable(t), sim, logging.Discard(), 50*time.Millisecond)
	seedAP(t, store)
	address := bindWallet(t, sim, "AP")
	ctx := context.Background()

	if _, err := svc.CreateETF(ctx, "AP", "ES3", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("create etf: %v", err)
	}

	sim.HoldConfirmations()
	_, err := svc.Tokenize(ctx, "AP", "ES3", decimal.NewFromInt(50), "adminKey")
	if !errors.Is(err, ErrIndeterminate) {
		t.Fatalf("expected indeterminate outcome, got %v", err)
	}
	var indeterminate *IndeterminateError
	if !errors.As(err, &indeterminate) || indeterminate.Pending.ID == "" {
		t.Fatalf("indeterminate error missing pending handle: %v", err)
	}

	// The registry must not have been decremented against an unknown outcome.
	account, _ := store.GetAccount(ctx, "AP")
	if !account.ETFs["ES3"].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("registry decremented on indeterminate mint: %v", account.ETFs)
	}

	// The mint may still land. Releasing confirmations shows the tokens
	// exist onchain even though the caller saw a timeout.
	sim.ReleaseConfirmations()
	deadline := time.Now().Add(time.Second)
	for {
		onchain, err := sim.BalanceOf(ctx, "ES3", address)
		if err != nil {
			t.Fatalf("balance of: %v", err)
		}
		if onchain.Sign() > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("held mint never confirmed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTokenizeRedeemRoundTrip(t *testing.T) {
	svc, store, sim := newTestEnv(t)
	seedAP(t, store)
	address := bindWallet(t, sim, "AP")
	ctx := context.Background()

	if _, err := svc.CreateETF(ctx, "AP", "ES3", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("create etf: %v", err)
	}

	if _, err := svc.Tokenize(ctx, "AP", "ES3", decimal.NewFromInt(40), "adminKey"); err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	res, err := svc.Redeem(ctx, "AP", "ES3", decimal.NewFromInt(40), "adminKey")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if !res.OffchainBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("round trip did not restore offchain balance: %s", res.OffchainBalance)
	}
	onchain, _ := sim.BalanceOf(ctx, "ES3", address)
	if onchain.Sign() != 0 {
		t.Fatalf("round trip left onchain balance: %s", onchain)
	}
}

func TestRedeemChecksOnchainBalance(t *testing.T) {
	svc, store, sim := newTestEnv(t)
	seedAP(t, store)
	bindWallet(t, sim, "AP")

	// Offchain holdings are irrelevant here: nothing was tokenized, so the
	// onchain balance is zero and redeem must refuse.
	_, err := svc.Redeem(context.Background(), "AP", "ES3", decimal.NewFromInt(1), "adminKey")
	if !errors.Is(err, registry.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient onchain balance, got %v", err)
	}
}

func TestRedeemCreatesSymbolEntry(t *testing.T) {
	svc, store, sim := newTestEnv(t)
	ctx := context.Background()
	if _, err := store.CreateAccount(ctx, "MM", nil); err != nil {
		t.Fatalf("seed MM: %v", err)
	}
	address := bindWallet(t, sim, "MM")
	mintTokens(t, sim, "ES3", address, decimal.NewFromInt(5))

	res, err := svc.Redeem(ctx, "MM", "ES3", decimal.NewFromInt(5), "adminKey")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !res.OffchainBalance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected ETF entry created at 5, got %s", res.OffchainBalance)
	}
}

func swapEnv(t *testing.T) (*Service, *chain.Sim, string, string) {
	t.Helper()
	svc, store, sim := newTestEnv(t)
	ctx := context.Background()
	for _, owner := range []string{"AP", "MM"} {
		if _, err := store.CreateAccount(ctx, owner, nil); err != nil {
			t.Fatalf("seed %s: %v", owner, err)
		}
	}
	addrA := bindWallet(t, sim, "AP")
	addrB := bindWallet(t, sim, "MM")
	mintTokens(t, sim, "ES3", addrA, decimal.NewFromInt(100))
	mintTokens(t, sim, "A35", addrB, decimal.NewFromInt(200))
	return svc, sim, addrA, addrB
}

func TestAtomicSwapSuccess(t *testing.T) {
	svc, sim, addrA, addrB := swapEnv(t)
	ctx := context.Background()

	res, err := svc.AtomicSwap(ctx, SwapInput{
		PartyA: "AP", PartyB: "MM",
		TokenSell: "ES3", TokenBuy: "A35",
		SellQuantity: decimal.NewFromInt(10), BuyQuantity: decimal.NewFromInt(30),
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(res.TxHashes) != 4 {
		t.Fatalf("expected 4 confirmed legs, got %d", len(res.TxHashes))
	}

	es3A, _ := sim.BalanceOf(ctx, "ES3", addrA)
	es3B, _ := sim.BalanceOf(ctx, "ES3", addrB)
	a35A, _ := sim.BalanceOf(ctx, "A35", addrA)
	a35B, _ := sim.BalanceOf(ctx, "A35", addrB)

	if es3A.Cmp(ToBaseUnits(decimal.NewFromInt(90))) != 0 || es3B.Cmp(ToBaseUnits(decimal.NewFromInt(10))) != 0 {
		t.Fatalf("ES3 leg wrong: A=%s B=%s", es3A, es3B)
	}
	if a35A.Cmp(ToBaseUnits(decimal.NewFromInt(30))) != 0 || a35B.Cmp(ToBaseUnits(decimal.NewFromInt(170))) != 0 {
		t.Fatalf("A35 leg wrong: A=%s B=%s", a35A, a35B)
	}
}

func TestAtomicSwapInsufficientBalanceFailsFast(t *testing.T) {
	svc, sim, addrA, addrB := swapEnv(t)
	ctx := context.Background()

	_, err := svc.AtomicSwap(ctx, SwapInput{
		PartyA: "AP", PartyB: "MM",
		TokenSell: "ES3", TokenBuy: "A35",
		SellQuantity: decimal.NewFromInt(1000), BuyQuantity: decimal.NewFromInt(30),
	})
	if !errors.Is(err, registry.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	// Fail fast means no ledger operation was ever submitted.
	for _, check := range []struct{ asset, owner, spender string }{
		{"ES3", addrA, addrB},
		{"A35", addrB, addrA},
	} {
		allowance, _ := sim.AllowanceOf(ctx, check.asset, check.owner, check.spender)
		if allowance.Sign() != 0 {
			t.Fatalf("allowance granted despite precheck failure: %s %s->%s", check.asset, check.owner, check.spender)
		}
	}
}

func TestAtomicSwapPartialFailureReportsStep(t *testing.T) {
	svc, sim, addrA, addrB := swapEnv(t)
	ctx := context.Background()

	// Both approvals confirm, then the third leg is rejected.
	sim.FailNthOp(3, "draw rejected")
	_, err := svc.AtomicSwap(ctx, SwapInput{
		PartyA: "AP", PartyB: "MM",
		TokenSell: "ES3", TokenBuy: "A35",
		SellQuantity: decimal.NewFromInt(10), BuyQuantity: decimal.NewFromInt(30),
	})
	if !errors.Is(err, ErrPartialSwap) {
		t.Fatalf("expected partial swap failure, got %v", err)
	}
	var swapErr *SwapError
	if !errors.As(err, &swapErr) {
		t.Fatalf("expected *SwapError, got %T", err)
	}
	if swapErr.Step != StepDrawSell {
		t.Fatalf("expected failure at %s, got %s", StepDrawSell, swapErr.Step)
	}
	if len(swapErr.Confirmed) != 2 {
		t.Fatalf("expected 2 confirmed legs, got %v", swapErr.Confirmed)
	}

	// No transfer happened, but the approvals are left outstanding: that is
	// the surfaced limitation the caller must compensate for.
	es3A, _ := sim.BalanceOf(ctx, "ES3", addrA)
	if es3A.Cmp(ToBaseUnits(decimal.NewFromInt(100))) != 0 {
		t.Fatalf("balance moved on failed swap: %s", es3A)
	}
	allowance, _ := sim.AllowanceOf(ctx, "ES3", addrA, addrB)
	if allowance.Cmp(ToBaseUnits(decimal.NewFromInt(10))) != 0 {
		t.Fatalf("expected outstanding sell allowance, got %s", allowance)
	}
}
