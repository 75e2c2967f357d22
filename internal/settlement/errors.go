package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
)

var (
	// ErrInvalidQuantity occurs when a requested quantity is not strictly positive.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrUnsupportedSymbol indicates an attempt to tokenize a symbol that is
	// not a configured ETF. Raw stock symbols are not tokenizable.
	ErrUnsupportedSymbol = errors.New("symbol is not tokenizable")

	// ErrWalletNotBound indicates the owner has no onchain wallet binding,
	// which Tokenize, Redeem and AtomicSwap all require.
	ErrWalletNotBound = errors.New("owner wallet not bound")

	// ErrIndeterminate matches IndeterminateError values via errors.Is.
	ErrIndeterminate = errors.New("ledger outcome indeterminate")

	// ErrPartialSwap matches SwapError values via errors.Is.
	ErrPartialSwap = errors.New("partial swap failure")
)

// IndeterminateError reports a ledger-mutating call whose outcome is unknown
// after a confirmation timeout. Neither success nor failure can be asserted:
// the operation may still confirm later, so it must never be treated as a
// revert and no compensating action may be issued against it.
type IndeterminateError struct {
	Operation string
	Pending   chain.Pending
	Err       error
}

func (e *IndeterminateError) Error() string {
	return fmt.Sprintf("%s outcome indeterminate (pending %s): %v", e.Operation, e.Pending.ID, e.Err)
}

func (e *IndeterminateError) Unwrap() error { return e.Err }

func (e *IndeterminateError) Is(target error) bool { return target == ErrIndeterminate }

// SwapStep names one leg of the four-step swap protocol.
type SwapStep string

const (
	StepApproveSell SwapStep = "approve_sell"
	StepApproveBuy  SwapStep = "approve_buy"
	StepDrawSell    SwapStep = "draw_sell"
	StepDrawBuy     SwapStep = "draw_buy"
)

// SwapError reports an AtomicSwap that failed after at least one leg was
// confirmed. The swap protocol has no ledger-level atomicity, so the error
// carries the failed step and the confirmed legs; the caller decides whether
// to issue a revoking authorization. No automatic rollback is attempted.
type SwapError struct {
	Step      SwapStep
	Confirmed []SwapStep
	Err       error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("swap failed at step %s after %d confirmed leg(s): %v", e.Step, len(e.Confirmed), e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

func (e *SwapError) Is(target error) bool { return target == ErrPartialSwap }

// ReconciliationError reports a confirmed onchain mutation whose matching
// offchain registry write failed. The two ledgers now disagree; the discrepancy
// is surfaced for manual or automated reconciliation, never silently resolved.
type ReconciliationError struct {
	Operation string
	OwnerID   string
	Symbol    string
	Quantity  decimal.Decimal
	TxHash    string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s: onchain tx %s confirmed for %s %s %s but registry update failed: %v",
		e.Operation, e.TxHash, e.OwnerID, e.Quantity, e.Symbol, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
