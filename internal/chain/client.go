package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

var (
	// ErrUnavailable indicates the ledger endpoint cannot be reached.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrTimeout indicates a confirmation wait elapsed. The operation's
	// eventual effect is unknown: it may still confirm later, so callers
	// must treat this as an ambiguous outcome, never as a revert.
	ErrTimeout = errors.New("confirmation timeout")

	// ErrRejected indicates the ledger finalized the operation as invalid
	// (e.g. burn exceeding balance, transferFrom exceeding allowance).
	ErrRejected = errors.New("operation rejected")

	// ErrInvalidAddress occurs when a balance read targets an address known
	// to belong to a ledger program rather than a holder.
	ErrInvalidAddress = errors.New("invalid holder address")

	// ErrUnbound indicates the owner has no wallet address bound onchain.
	ErrUnbound = errors.New("owner has no bound address")
)

// Client abstracts the onchain ledger. Submit issues a state-changing call
// without blocking for finality; AwaitConfirmation suspends only the calling
// flow until the operation is finalized or the timeout elapses. Reads return
// confirmed state only.
type Client interface {
	Submit(ctx context.Context, op Op) (Pending, error)
	AwaitConfirmation(ctx context.Context, pending Pending, timeout time.Duration) (Receipt, error)
	BalanceOf(ctx context.Context, assetID, address string) (*big.Int, error)
	AllowanceOf(ctx context.Context, assetID, owner, spender string) (*big.Int, error)
	ResolveAddress(ctx context.Context, ownerID string) (string, error)
}

// Dial connects to the ledger endpoint named by the RPC URL. Only the sim://
// scheme is wired in this demo; anything else surfaces ErrUnavailable so a
// misconfigured endpoint is an error at the boundary, never a crash.
func Dial(rpcURL string) (Client, error) {
	switch {
	case rpcURL == "":
		return nil, fmt.Errorf("ledger rpc url is empty: %w", ErrUnavailable)
	case strings.HasPrefix(rpcURL, "sim://"):
		return NewSim(SimConfig{}), nil
	default:
		return nil, fmt.Errorf("unsupported ledger endpoint %q: %w", rpcURL, ErrUnavailable)
	}
}
