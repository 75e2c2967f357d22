package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/logging"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/registry"
)

func newTestService(t *testing.T) (*Service, registry.Store) {
	t.Helper()
	store := registry.NewMemory()
	sim := chain.NewSim(chain.SimConfig{})
	t.Cleanup(sim.Close)
	return NewService(store, sim, logging.Discard(), time.Second), store
}

func TestProvisionBindsDeterministicAddress(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if _, err := store.CreateAccount(ctx, "AP", nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	binding, err := svc.Provision(ctx, "AP")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if binding.Existing {
		t.Fatal("fresh provision reported existing binding")
	}
	if binding.Address != chain.DeriveAddress("AP") {
		t.Fatalf("unexpected address %s", binding.Address)
	}

	resolved, err := svc.Resolve(ctx, "AP")
	if err != nil || resolved != binding.Address {
		t.Fatalf("resolve: %s, %v", resolved, err)
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if _, err := store.CreateAccount(ctx, "AP", nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first, err := svc.Provision(ctx, "AP")
	if err != nil {
		t.Fatalf("first provision: %v", err)
	}
	second, err := svc.Provision(ctx, "AP")
	if err != nil {
		t.Fatalf("second provision: %v", err)
	}
	if !second.Existing || second.Address != first.Address {
		t.Fatalf("expected idempotent rebind, got %+v", second)
	}
}

func TestProvisionRequiresAccount(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Provision(context.Background(), "ghost"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
