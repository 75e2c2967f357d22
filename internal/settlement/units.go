package settlement

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FractionalDigits is the fixed-point precision of the onchain token, matching
// the standard token convention.
const FractionalDigits = 18

// ToBaseUnits converts a registry decimal quantity to onchain base units.
// Excess precision is truncated, never rounded up, so the bridge can never
// mint more tokens than the offchain side backs.
func ToBaseUnits(q decimal.Decimal) *big.Int {
	return q.Shift(FractionalDigits).Truncate(0).BigInt()
}

// FromBaseUnits converts onchain base units back to a registry decimal.
func FromBaseUnits(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -FractionalDigits)
}
