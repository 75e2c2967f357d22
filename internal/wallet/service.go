package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/registry"
)

// Binding associates a registry owner with its onchain wallet address.
type Binding struct {
	OwnerID  string
	Address  string
	Existing bool
	BoundAt  time.Time
}

// Service provisions onchain wallets for registry owners. The binding lives
// onchain only; the registry never caches it, because binding creation is
// itself a ledger-mutating operation with its own confirmation latency.
type Service struct {
	registry       registry.Store
	ledger         chain.Client
	logger         *slog.Logger
	confirmTimeout time.Duration
}

// NewService builds a wallet provisioning service.
func NewService(store registry.Store, ledger chain.Client, logger *slog.Logger, confirmTimeout time.Duration) *Service {
	if confirmTimeout <= 0 {
		confirmTimeout = 60 * time.Second
	}
	return &Service{registry: store, ledger: ledger, logger: logger, confirmTimeout: confirmTimeout}
}

// Provision derives a deterministic address for the owner and binds it
// onchain, awaiting confirmation. Provisioning an already-bound owner is
// idempotent and returns the existing binding.
func (s *Service) Provision(ctx context.Context, ownerID string) (Binding, error) {
	if _, err := s.registry.GetAccount(ctx, ownerID); err != nil {
		return Binding{}, err
	}

	if existing, err := s.ledger.ResolveAddress(ctx, ownerID); err == nil {
		return Binding{OwnerID: ownerID, Address: existing, Existing: true}, nil
	} else if !errors.Is(err, chain.ErrUnbound) {
		return Binding{}, err
	}

	address := chain.DeriveAddress(ownerID)
	pending, err := s.ledger.Submit(ctx, chain.Op{Kind: chain.OpBind, OwnerID: ownerID, To: address})
	if err != nil {
		return Binding{}, err
	}
	receipt, err := s.ledger.AwaitConfirmation(ctx, pending, s.confirmTimeout)
	if err != nil {
		return Binding{}, fmt.Errorf("bind wallet for %s: %w", ownerID, err)
	}

	s.logger.Info("wallet provisioned", "owner", ownerID, "address", address, "tx", receipt.TxHash)
	return Binding{OwnerID: ownerID, Address: address, BoundAt: receipt.ConfirmedAt}, nil
}

// Resolve returns the owner's bound address, or chain.ErrUnbound.
func (s *Service) Resolve(ctx context.Context, ownerID string) (string, error) {
	return s.ledger.ResolveAddress(ctx, ownerID)
}
