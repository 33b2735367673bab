package price

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// PiconeroPerXMR is the number of atomic units in one XMR.
const PiconeroPerXMR = 1_000_000_000_000

// AtomicPlaces is the number of decimal places of an XMR amount.
const AtomicPlaces = 12

var piconero = decimal.NewFromInt(PiconeroPerXMR)

// RoundXMR rounds amount to whole piconero.
func RoundXMR(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(AtomicPlaces)
}

// ToAtomic converts an XMR amount to piconero.
func ToAtomic(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", amount)
	}
	units := RoundXMR(amount).Mul(piconero)
	if units.GreaterThan(fromUint64(math.MaxUint64)) {
		return 0, fmt.Errorf("amount %s overflows piconero", amount)
	}
	return units.BigInt().Uint64(), nil
}

// FromAtomic converts piconero to XMR.
func FromAtomic(units uint64) decimal.Decimal {
	return fromUint64(units).Div(piconero)
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
