package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimConfig tunes the simulated ledger.
type SimConfig struct {
	// ConfirmLatency delays finalization of every submitted operation,
	// mimicking block confirmation time. Zero finalizes immediately.
	ConfirmLatency time.Duration
}

// Sim is an in-process simulated ledger. Submitted operations are finalized by
// a single background applier, which gives the sequential ordering the real
// ledger guarantees per address. Balances, allowances and owner bindings are
// confirmed state only: reads never observe an unfinalized operation.
type Sim struct {
	cfg SimConfig

	mu         sync.Mutex
	balances   map[string]map[string]*big.Int
	allowances map[string]*big.Int
	bindings   map[string]string
	boundOwner map[string]string
	programs   map[string]bool
	pendings   map[string]*pendingState
	opCount    int
	failPlan   map[int]string
	hold       bool
	held       []*pendingState
	closed     bool

	queue chan *pendingState
	done  chan struct{}
}

type pendingState struct {
	op      Op
	seq     int
	pending Pending
	ready   chan struct{}
	receipt Receipt
	err     error
}

// NewSim starts a simulated ledger.
func NewSim(cfg SimConfig) *Sim {
	s := &Sim{
		cfg:        cfg,
		balances:   make(map[string]map[string]*big.Int),
		allowances: make(map[string]*big.Int),
		bindings:   make(map[string]string),
		boundOwner: make(map[string]string),
		programs:   make(map[string]bool),
		pendings:   make(map[string]*pendingState),
		queue:      make(chan *pendingState, 256),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

// Close stops the applier. Further submissions fail with ErrUnavailable.
func (s *Sim) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.queue)
	<-s.done
}

// RegisterProgram marks an address as belonging to a ledger program, so that
// balance reads against it fail with ErrInvalidAddress.
func (s *Sim) RegisterProgram(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[address] = true
}

// FailNextOp forces the next submitted operation to finalize as rejected with
// the given reason. Test hook.
func (s *Sim) FailNextOp(reason string) {
	s.FailNthOp(1, reason)
}

// FailNthOp forces the nth operation submitted after this call to finalize as
// rejected. Test hook.
func (s *Sim) FailNthOp(n int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPlan == nil {
		s.failPlan = make(map[int]string)
	}
	s.failPlan[s.opCount+n] = reason
}

// HoldConfirmations withholds receipts for subsequently finalized operations.
// The operations still apply, so a waiting caller times out while the effect
// lands anyway, which is exactly the indeterminate window the settlement layer
// must cope with. Test hook.
func (s *Sim) HoldConfirmations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = true
}

// ReleaseConfirmations delivers all withheld receipts.
func (s *Sim) ReleaseConfirmations() {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.hold = false
	s.mu.Unlock()
	for _, st := range held {
		close(st.ready)
	}
}

func (s *Sim) Submit(_ context.Context, op Op) (Pending, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Pending{}, ErrUnavailable
	}
	s.opCount++
	st := &pendingState{
		op:  op,
		seq: s.opCount,
		pending: Pending{
			ID:          uuid.NewString(),
			Kind:        op.Kind,
			SubmittedAt: time.Now().UTC(),
		},
		ready: make(chan struct{}),
	}
	s.pendings[st.pending.ID] = st
	s.mu.Unlock()

	s.queue <- st
	return st.pending, nil
}

func (s *Sim) AwaitConfirmation(ctx context.Context, pending Pending, timeout time.Duration) (Receipt, error) {
	s.mu.Lock()
	st, ok := s.pendings[pending.ID]
	s.mu.Unlock()
	if !ok {
		return Receipt{}, fmt.Errorf("unknown pending operation %s: %w", pending.ID, ErrRejected)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-st.ready:
		return st.receipt, st.err
	case <-timer.C:
		return Receipt{}, fmt.Errorf("operation %s not confirmed after %s: %w", pending.ID, timeout, ErrTimeout)
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

func (s *Sim) BalanceOf(_ context.Context, assetID, address string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.programs[address] {
		return nil, fmt.Errorf("%s is a program address: %w", address, ErrInvalidAddress)
	}
	return new(big.Int).Set(s.balance(assetID, address)), nil
}

func (s *Sim) AllowanceOf(_ context.Context, assetID, owner, spender string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount, ok := s.allowances[allowanceKey(assetID, owner, spender)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return new(big.Int), nil
}

func (s *Sim) ResolveAddress(_ context.Context, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	address, ok := s.bindings[ownerID]
	if !ok {
		return "", fmt.Errorf("%s: %w", ownerID, ErrUnbound)
	}
	return address, nil
}

func (s *Sim) run() {
	defer close(s.done)
	for st := range s.queue {
		if s.cfg.ConfirmLatency > 0 {
			time.Sleep(s.cfg.ConfirmLatency)
		}
		s.finalize(st)
	}
}

func (s *Sim) finalize(st *pendingState) {
	s.mu.Lock()
	if reason, ok := s.failPlan[st.seq]; ok {
		st.err = fmt.Errorf("%s: %w", reason, ErrRejected)
		delete(s.failPlan, st.seq)
	} else if err := s.apply(st.op); err != nil {
		st.err = err
	} else {
		st.receipt = Receipt{
			OpID:        st.pending.ID,
			TxHash:      uuid.NewString(),
			Kind:        st.op.Kind,
			ConfirmedAt: time.Now().UTC(),
		}
	}
	if s.hold {
		s.held = append(s.held, st)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	close(st.ready)
}

// apply mutates confirmed state. Callers hold s.mu.
func (s *Sim) apply(op Op) error {
	switch op.Kind {
	case OpMint:
		if err := s.checkHolder(op.To); err != nil {
			return err
		}
		if err := checkAmount(op.Amount); err != nil {
			return err
		}
		s.credit(op.AssetID, op.To, op.Amount)
	case OpBurn:
		if err := checkAmount(op.Amount); err != nil {
			return err
		}
		if s.balance(op.AssetID, op.From).Cmp(op.Amount) < 0 {
			return fmt.Errorf("burn %s from %s exceeds balance: %w", op.Amount, op.From, ErrRejected)
		}
		s.debit(op.AssetID, op.From, op.Amount)
	case OpTransfer:
		if err := s.checkHolder(op.To); err != nil {
			return err
		}
		if err := checkAmount(op.Amount); err != nil {
			return err
		}
		if op.Spender != "" && op.Spender != op.From {
			key := allowanceKey(op.AssetID, op.From, op.Spender)
			allowance, ok := s.allowances[key]
			if !ok || allowance.Cmp(op.Amount) < 0 {
				return fmt.Errorf("transfer of %s exceeds allowance for %s: %w", op.Amount, op.Spender, ErrRejected)
			}
			s.allowances[key] = new(big.Int).Sub(allowance, op.Amount)
		}
		if s.balance(op.AssetID, op.From).Cmp(op.Amount) < 0 {
			return fmt.Errorf("transfer %s from %s exceeds balance: %w", op.Amount, op.From, ErrRejected)
		}
		s.debit(op.AssetID, op.From, op.Amount)
		s.credit(op.AssetID, op.To, op.Amount)
	case OpApprove:
		if op.Amount == nil || op.Amount.Sign() < 0 {
			return fmt.Errorf("approve amount must be non-negative: %w", ErrRejected)
		}
		s.allowances[allowanceKey(op.AssetID, op.From, op.Spender)] = new(big.Int).Set(op.Amount)
	case OpBind:
		if existing, ok := s.bindings[op.OwnerID]; ok {
			if existing == op.To {
				return nil
			}
			return fmt.Errorf("owner %s already bound to %s: %w", op.OwnerID, existing, ErrRejected)
		}
		if owner, ok := s.boundOwner[op.To]; ok {
			return fmt.Errorf("address %s already bound to owner %s: %w", op.To, owner, ErrRejected)
		}
		s.bindings[op.OwnerID] = op.To
		s.boundOwner[op.To] = op.OwnerID
	default:
		return fmt.Errorf("unknown operation kind %q: %w", op.Kind, ErrRejected)
	}
	return nil
}

func (s *Sim) checkHolder(address string) error {
	if s.programs[address] {
		return fmt.Errorf("%s is a program address: %w", address, ErrInvalidAddress)
	}
	return nil
}

func (s *Sim) balance(assetID, address string) *big.Int {
	if holders, ok := s.balances[assetID]; ok {
		if amount, ok := holders[address]; ok {
			return amount
		}
	}
	return new(big.Int)
}

func (s *Sim) credit(assetID, address string, amount *big.Int) {
	holders, ok := s.balances[assetID]
	if !ok {
		holders = make(map[string]*big.Int)
		s.balances[assetID] = holders
	}
	holders[address] = new(big.Int).Add(s.balance(assetID, address), amount)
}

func (s *Sim) debit(assetID, address string, amount *big.Int) {
	s.balances[assetID][address] = new(big.Int).Sub(s.balance(assetID, address), amount)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive: %w", ErrRejected)
	}
	return nil
}

func allowanceKey(assetID, owner, spender string) string {
	return assetID + "|" + owner + "|" + spender
}
