package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
)

type simState struct {
	Balances   map[string]map[string]string `json:"balances"`
	Allowances map[string]string            `json:"allowances"`
	Bindings   map[string]string            `json:"bindings"`
	Programs   []string                     `json:"programs"`
}

// Snapshot serializes the sim's confirmed state so a short-lived process (the
// demo CLI) can carry the ledger across invocations. Pending operations are
// not captured; snapshot after confirmations have been awaited.
func (s *Sim) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := simState{
		Balances:   make(map[string]map[string]string, len(s.balances)),
		Allowances: make(map[string]string, len(s.allowances)),
		Bindings:   make(map[string]string, len(s.bindings)),
	}
	for assetID, holders := range s.balances {
		out := make(map[string]string, len(holders))
		for address, amount := range holders {
			out[address] = amount.String()
		}
		state.Balances[assetID] = out
	}
	for key, amount := range s.allowances {
		state.Allowances[key] = amount.String()
	}
	for owner, address := range s.bindings {
		state.Bindings[owner] = address
	}
	for address := range s.programs {
		state.Programs = append(state.Programs, address)
	}
	return json.MarshalIndent(state, "", "  ")
}

// Restore replaces the sim's confirmed state with a previously taken snapshot.
func (s *Sim) Restore(data []byte) error {
	var state simState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode ledger snapshot: %w", err)
	}

	balances := make(map[string]map[string]*big.Int, len(state.Balances))
	for assetID, holders := range state.Balances {
		out := make(map[string]*big.Int, len(holders))
		for address, raw := range holders {
			amount, ok := new(big.Int).SetString(raw, 10)
			if !ok {
				return fmt.Errorf("invalid balance %q for %s/%s", raw, assetID, address)
			}
			out[address] = amount
		}
		balances[assetID] = out
	}
	allowances := make(map[string]*big.Int, len(state.Allowances))
	for key, raw := range state.Allowances {
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return fmt.Errorf("invalid allowance %q for %s", raw, key)
		}
		allowances[key] = amount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances = balances
	s.allowances = allowances
	s.bindings = make(map[string]string, len(state.Bindings))
	s.boundOwner = make(map[string]string, len(state.Bindings))
	for owner, address := range state.Bindings {
		s.bindings[owner] = address
		s.boundOwner[address] = owner
	}
	s.programs = make(map[string]bool, len(state.Programs))
	for _, address := range state.Programs {
		s.programs[address] = true
	}
	return nil
}
