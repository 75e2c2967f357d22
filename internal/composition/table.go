package composition

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// ErrUnknownETF occurs when a referenced ETF symbol has no configured composition.
var ErrUnknownETF = errors.New("unknown etf")

// Composition lists the constituent securities backing one ETF share.
type Composition struct {
	Symbol       string
	Constituents map[string]decimal.Decimal
}

// Table is the immutable ETF composition table, loaded once at process start.
type Table struct {
	compositions map[string]Composition
}

// New builds a table from symbol -> constituent ratio maps. Every ratio must be
// strictly positive.
func New(compositions map[string]map[string]decimal.Decimal) (*Table, error) {
	table := &Table{compositions: make(map[string]Composition, len(compositions))}
	for symbol, constituents := range compositions {
		if len(constituents) == 0 {
			return nil, fmt.Errorf("etf %s has no constituents", symbol)
		}
		comp := Composition{Symbol: symbol, Constituents: make(map[string]decimal.Decimal, len(constituents))}
		for constituent, ratio := range constituents {
			if !ratio.IsPositive() {
				return nil, fmt.Errorf("etf %s constituent %s: ratio must be positive, got %s", symbol, constituent, ratio)
			}
			comp.Constituents[constituent] = ratio
		}
		table.compositions[symbol] = comp
	}
	return table, nil
}

// LoadFile reads a composition table from a JSON document of the form
// {"ES3": {"constituents": {"A": "5", "B": "2"}}}.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compositions: %w", err)
	}
	var doc map[string]struct {
		Constituents map[string]decimal.Decimal `json:"constituents"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode compositions: %w", err)
	}
	compositions := make(map[string]map[string]decimal.Decimal, len(doc))
	for symbol, entry := range doc {
		compositions[symbol] = entry.Constituents
	}
	return New(compositions)
}

// Get returns the composition for the ETF symbol.
func (t *Table) Get(symbol string) (Composition, error) {
	comp, ok := t.compositions[symbol]
	if !ok {
		return Composition{}, fmt.Errorf("%s: %w", symbol, ErrUnknownETF)
	}
	// Copy the constituent map so callers cannot mutate the table.
	out := Composition{Symbol: comp.Symbol, Constituents: make(map[string]decimal.Decimal, len(comp.Constituents))}
	for constituent, ratio := range comp.Constituents {
		out.Constituents[constituent] = ratio
	}
	return out, nil
}

// Symbols lists the configured ETF symbols.
func (t *Table) Symbols() []string {
	out := make([]string, 0, len(t.compositions))
	for symbol := range t.compositions {
		out = append(out, symbol)
	}
	return out
}

// Has reports whether the symbol is a configured ETF.
func (t *Table) Has(symbol string) bool {
	_, ok := t.compositions[symbol]
	return ok
}
