package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/composition"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/coordinator"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/logging"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/notification"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/registry"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/settlement"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/wallet"
)

const usage = `tetfctl - tokenized ETF settlement demo

Usage:
  tetfctl [-data DIR] seed
  tetfctl [-data DIR] provision OWNER
  tetfctl [-data DIR] create-etf OWNER ETF QTY
  tetfctl [-data DIR] tokenize OWNER SYMBOL QTY SIGNING_KEY
  tetfctl [-data DIR] redeem OWNER SYMBOL QTY SIGNING_KEY
  tetfctl [-data DIR] swap PARTY_A PARTY_B TOKEN_SELL TOKEN_BUY SELL_QTY BUY_QTY
  tetfctl [-data DIR] balance OWNER
`

func main() {
	dataDir := flag.String("data", ".tetf-data", "directory holding the registry document and ledger snapshot")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if err := run(*dataDir, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "tetfctl: %v\n", err)
		os.Exit(1)
	}
}

func run(dataDir string, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("missing command")
	}

	logger := logging.New(getEnv("LOG_LEVEL", "warn"))
	store := registry.NewFile(filepath.Join(dataDir, "registry.json"))

	sim := chain.NewSim(chain.SimConfig{})
	defer sim.Close()
	ledgerPath := filepath.Join(dataDir, "ledger.json")
	if raw, err := os.ReadFile(ledgerPath); err == nil {
		if err := sim.Restore(raw); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read ledger snapshot: %w", err)
	}

	table := composition.Demo()
	if path := os.Getenv("COMPOSITIONS_PATH"); path != "" {
		var err error
		if table, err = composition.LoadFile(path); err != nil {
			return err
		}
	}

	settlementSvc := settlement.NewService(store, table, sim, logger, settlement.DefaultConfirmTimeout)
	walletSvc := wallet.NewService(store, sim, logger, settlement.DefaultConfirmTimeout)
	coord := coordinator.New(settlementSvc, notification.NewLoggerNotifier(logger), logger)

	ctx := context.Background()
	cmdErr := dispatch(ctx, args, store, walletSvc, coord, sim, table)

	// The ledger confirmed whatever it confirmed, success or not; always
	// persist the snapshot so the onchain side survives the process.
	if raw, err := sim.Snapshot(); err == nil {
		if err := os.MkdirAll(dataDir, 0o755); err == nil {
			_ = os.WriteFile(ledgerPath, raw, 0o644)
		}
	}

	return cmdErr
}

func dispatch(ctx context.Context, args []string, store registry.Store, wallets *wallet.Service, coord *coordinator.Coordinator, sim *chain.Sim, table *composition.Table) error {
	switch cmd, rest := args[0], args[1:]; cmd {
	case "seed":
		return seed(ctx, store, wallets)
	case "provision":
		if len(rest) != 1 {
			return fmt.Errorf("usage: provision OWNER")
		}
		binding, err := wallets.Provision(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("owner %s bound to %s\n", binding.OwnerID, binding.Address)
		return nil
	case "create-etf":
		if len(rest) != 3 {
			return fmt.Errorf("usage: create-etf OWNER ETF QTY")
		}
		qty, err := decimal.NewFromString(rest[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q: %w", rest[2], err)
		}
		result, err := coord.Execute(ctx, coordinator.Request{
			Kind: coordinator.KindCreateETF, OwnerID: rest[0], Symbol: rest[1], Quantity: qty,
		})
		if err != nil {
			return err
		}
		res := result.CreateETF
		fmt.Printf("created %s %s for %s (balance %s)\n", res.Quantity, res.ETFSymbol, res.OwnerID, res.ETFBalance)
		for sym, deducted := range res.Deductions {
			fmt.Printf("  deducted %s %s\n", deducted, sym)
		}
		return nil
	case "tokenize", "redeem":
		if len(rest) != 4 {
			return fmt.Errorf("usage: %s OWNER SYMBOL QTY SIGNING_KEY", cmd)
		}
		qty, err := decimal.NewFromString(rest[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q: %w", rest[2], err)
		}
		kind := coordinator.KindTokenize
		if cmd == "redeem" {
			kind = coordinator.KindRedeem
		}
		result, err := coord.Execute(ctx, coordinator.Request{
			Kind: kind, OwnerID: rest[0], Symbol: rest[1], Quantity: qty, ActingIdentity: rest[3],
		})
		if err != nil {
			return err
		}
		res := result.Bridge
		fmt.Printf("%sd %s %s for %s (tx %s)\n", cmd, res.Quantity, res.Symbol, res.OwnerID, res.TxHash)
		fmt.Printf("  onchain %s, offchain %s\n", res.OnchainBalance, res.OffchainBalance)
		return nil
	case "swap":
		if len(rest) != 6 {
			return fmt.Errorf("usage: swap PARTY_A PARTY_B TOKEN_SELL TOKEN_BUY SELL_QTY BUY_QTY")
		}
		sellQty, err := decimal.NewFromString(rest[4])
		if err != nil {
			return fmt.Errorf("invalid sell quantity %q: %w", rest[4], err)
		}
		buyQty, err := decimal.NewFromString(rest[5])
		if err != nil {
			return fmt.Errorf("invalid buy quantity %q: %w", rest[5], err)
		}
		result, err := coord.Execute(ctx, coordinator.Request{
			Kind: coordinator.KindSwap,
			Swap: settlement.SwapInput{
				PartyA: rest[0], PartyB: rest[1],
				TokenSell: rest[2], TokenBuy: rest[3],
				SellQuantity: sellQty, BuyQuantity: buyQty,
			},
		})
		if err != nil {
			return err
		}
		fmt.Printf("swap settled, legs:\n")
		for step, tx := range result.Swap.TxHashes {
			fmt.Printf("  %s: %s\n", step, tx)
		}
		return nil
	case "balance":
		if len(rest) != 1 {
			return fmt.Errorf("usage: balance OWNER")
		}
		return printBalances(ctx, rest[0], store, sim, table)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func seed(ctx context.Context, store registry.Store, wallets *wallet.Service) error {
	book := map[string]map[string]decimal.Decimal{
		"AP": {"D05": decimal.NewFromInt(1000), "O39": decimal.NewFromInt(500), "SGOV": decimal.NewFromInt(5000)},
		"MM": {"D05": decimal.NewFromInt(2000), "O39": decimal.NewFromInt(1000), "SGOV": decimal.NewFromInt(10000)},
	}
	for ownerID, stocks := range book {
		if _, err := store.CreateAccount(ctx, ownerID, stocks); err != nil {
			if errors.Is(err, registry.ErrAccountExists) {
				continue
			}
			return err
		}
		if _, err := wallets.Provision(ctx, ownerID); err != nil {
			return err
		}
		fmt.Printf("seeded account %s\n", ownerID)
	}
	return nil
}

func printBalances(ctx context.Context, ownerID string, store registry.Store, sim *chain.Sim, table *composition.Table) error {
	account, err := store.GetAccount(ctx, ownerID)
	if err != nil {
		return err
	}
	fmt.Printf("registry holdings for %s:\n", ownerID)
	for sym, qty := range account.Stocks {
		fmt.Printf("  stock %s: %s\n", sym, qty)
	}
	for sym, qty := range account.ETFs {
		fmt.Printf("  etf   %s: %s\n", sym, qty)
	}

	address, err := sim.ResolveAddress(ctx, ownerID)
	if err != nil {
		if errors.Is(err, chain.ErrUnbound) {
			fmt.Println("no wallet bound")
			return nil
		}
		return err
	}
	fmt.Printf("onchain balances at %s:\n", address)
	for _, symbol := range table.Symbols() {
		amount, err := sim.BalanceOf(ctx, symbol, address)
		if err != nil {
			return err
		}
		fmt.Printf("  token %s: %s\n", symbol, settlement.FromBaseUnits(amount))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
