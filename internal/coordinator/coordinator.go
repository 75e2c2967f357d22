package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/notification"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/settlement"
)

// Kind names one of the four settlement operations.
type Kind string

const (
	KindCreateETF Kind = "create_etf"
	KindTokenize  Kind = "tokenize"
	KindRedeem    Kind = "redeem"
	KindSwap      Kind = "swap"
)

// Request describes one settlement operation to execute. OwnerID, Symbol,
// Quantity and ActingIdentity apply to the single-owner kinds; Swap applies to
// KindSwap.
type Request struct {
	Kind           Kind
	OwnerID        string
	Symbol         string
	Quantity       decimal.Decimal
	ActingIdentity string
	Swap           settlement.SwapInput
}

// Result is the structured outcome of a completed operation. Exactly one of
// CreateETF, Bridge or Swap is set, matching the request kind.
type Result struct {
	OperationID string
	Kind        Kind
	CompletedAt time.Time
	CreateETF   *settlement.CreateETFResult
	Bridge      *settlement.BridgeResult
	Swap        *settlement.SwapResult
}

// Coordinator serializes settlement operations per account: two operations
// referencing an overlapping set of owners never run concurrently, while
// operations on disjoint owner sets proceed in parallel. This is the only
// locking discipline over the shared registry document.
type Coordinator struct {
	service  *settlement.Service
	notifier notification.Notifier
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// New constructs a coordinator over the settlement service.
func New(service *settlement.Service, notifier notification.Notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		service:  service,
		notifier: notifier,
		logger:   logger,
		locks:    make(map[string]*ownerLock),
	}
}

// Execute runs the requested operation to completion under the per-owner locks
// it needs, then publishes a confirmed-operation notification on success.
func (c *Coordinator) Execute(ctx context.Context, req Request) (Result, error) {
	owners := req.owners()
	if len(owners) == 0 {
		return Result{}, fmt.Errorf("request names no owner")
	}
	unlock := c.lockOwners(owners)
	defer unlock()

	result := Result{OperationID: uuid.NewString(), Kind: req.Kind}

	switch req.Kind {
	case KindCreateETF:
		res, err := c.service.CreateETF(ctx, req.OwnerID, req.Symbol, req.Quantity)
		if err != nil {
			return Result{}, err
		}
		result.CreateETF = &res
		c.notify(ctx, notification.KindETFCreated, req.OwnerID,
			fmt.Sprintf("created %s %s shares", req.Quantity, req.Symbol))
	case KindTokenize:
		res, err := c.service.Tokenize(ctx, req.OwnerID, req.Symbol, req.Quantity, req.ActingIdentity)
		if err != nil {
			return Result{}, err
		}
		result.Bridge = &res
		c.notify(ctx, notification.KindTokenized, req.OwnerID,
			fmt.Sprintf("tokenized %s %s to %s", req.Quantity, req.Symbol, res.Address))
	case KindRedeem:
		res, err := c.service.Redeem(ctx, req.OwnerID, req.Symbol, req.Quantity, req.ActingIdentity)
		if err != nil {
			return Result{}, err
		}
		result.Bridge = &res
		c.notify(ctx, notification.KindRedeemed, req.OwnerID,
			fmt.Sprintf("redeemed %s %s from %s", req.Quantity, req.Symbol, res.Address))
	case KindSwap:
		res, err := c.service.AtomicSwap(ctx, req.Swap)
		if err != nil {
			return Result{}, err
		}
		result.Swap = &res
		c.notify(ctx, notification.KindSwapSettled, req.Swap.PartyA,
			fmt.Sprintf("swapped %s %s for %s %s with %s",
				req.Swap.SellQuantity, req.Swap.TokenSell,
				req.Swap.BuyQuantity, req.Swap.TokenBuy, req.Swap.PartyB))
	default:
		return Result{}, fmt.Errorf("unknown operation kind %q", req.Kind)
	}

	result.CompletedAt = time.Now().UTC()
	return result, nil
}

func (r Request) owners() []string {
	if r.Kind == KindSwap {
		return []string{r.Swap.PartyA, r.Swap.PartyB}
	}
	if r.OwnerID == "" {
		return nil
	}
	return []string{r.OwnerID}
}

// lockOwners acquires every owner's lock in sorted order so two requests over
// overlapping owner sets can never deadlock each other.
func (c *Coordinator) lockOwners(owners []string) func() {
	unique := make([]string, 0, len(owners))
	seen := make(map[string]bool, len(owners))
	for _, owner := range owners {
		if owner != "" && !seen[owner] {
			seen[owner] = true
			unique = append(unique, owner)
		}
	}
	sort.Strings(unique)

	entries := make([]*ownerLock, len(unique))
	for i, owner := range unique {
		c.mu.Lock()
		entry, ok := c.locks[owner]
		if !ok {
			entry = &ownerLock{}
			c.locks[owner] = entry
		}
		entry.refs++
		c.mu.Unlock()
		entry.mu.Lock()
		entries[i] = entry
	}

	return func() {
		for i := len(unique) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
			c.mu.Lock()
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(c.locks, unique[i])
			}
			c.mu.Unlock()
		}
	}
}

func (c *Coordinator) notify(ctx context.Context, kind, destination, body string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body}); err != nil {
		c.logger.Warn("notification failed", "kind", kind, "error", err)
	}
}
