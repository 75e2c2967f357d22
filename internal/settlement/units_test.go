package settlement

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToBaseUnitsScales(t *testing.T) {
	got := ToBaseUnits(decimal.NewFromInt(50))
	want, _ := new(big.Int).SetString("50000000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestToBaseUnitsTruncatesExcessPrecision(t *testing.T) {
	// More than 18 fractional digits must truncate toward zero: the bridge
	// can never mint more than the offchain side backs.
	q, err := decimal.NewFromString("1.0000000000000000019")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := ToBaseUnits(q)
	want, _ := new(big.Int).SetString("1000000000000000001", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected truncation to %s, got %s", want, got)
	}
}

func TestFromBaseUnitsRoundTrip(t *testing.T) {
	q, err := decimal.NewFromString("123.456789")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back := FromBaseUnits(ToBaseUnits(q)); !back.Equal(q) {
		t.Fatalf("round trip changed %s to %s", q, back)
	}
}
