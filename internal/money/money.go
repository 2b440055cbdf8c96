package money

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents an amount in atomic units for a specific asset.
// Atomic amounts are unbounded integers so uint256 token values fit.
//
// Examples:
//   - 1.5 USDC  = Money{Asset: USDC, Atomic: 1500000}  // 1.5 × 10^6
//   - 0.01 USDC = Money{Asset: USDC, Atomic: 10000}
type Money struct {
	Asset  Asset
	Atomic *big.Int
}

var (
	// ErrNegativeAmount occurs when negative amount is invalid for operation.
	ErrNegativeAmount = errors.New("money: negative amount not allowed")

	// ErrInvalidFormat occurs when parsing fails.
	ErrInvalidFormat = errors.New("money: invalid format")

	// ErrAssetMismatch occurs when operating on different assets.
	ErrAssetMismatch = errors.New("money: asset mismatch")
)

// maxMajorLength bounds the textual input of FromMajor. Scientific
// notation is rejected outright.
const maxMajorLength = 96

// MaxAtomic is the largest value an EIP-3009 authorization can carry (2^256-1).
var MaxAtomic = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Zero returns a zero amount for the given asset.
func Zero(asset Asset) Money {
	return Money{Asset: asset, Atomic: new(big.Int)}
}

// New creates a Money from atomic units. atomic is copied.
func New(asset Asset, atomic *big.Int) Money {
	if atomic == nil {
		return Zero(asset)
	}
	return Money{Asset: asset, Atomic: new(big.Int).Set(atomic)}
}

// FromMajor creates Money from a major unit string, truncating toward zero
// any precision finer than the asset's decimals. Negative input, exponent
// notation and values above MaxAtomic are rejected.
//
// Examples:
//   - FromMajor(USDC, "1.5")       → 1500000
//   - FromMajor(USDC, "0.0000019") → 1
func FromMajor(asset Asset, major string) (Money, error) {
	s := strings.TrimSpace(major)
	if len(s) > maxMajorLength || strings.ContainsAny(s, "eE") {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidFormat, major)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidFormat, major)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: %q", ErrNegativeAmount, major)
	}
	atomic := d.Shift(int32(asset.Decimals)).Floor().BigInt()
	if atomic.Cmp(MaxAtomic) > 0 {
		return Money{}, fmt.Errorf("%w: %q exceeds uint256", ErrInvalidFormat, major)
	}
	return Money{Asset: asset, Atomic: atomic}, nil
}

// FromAtomic creates Money from an atomic units string.
func FromAtomic(asset Asset, atomic string) (Money, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(atomic), 10)
	if !ok {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidFormat, atomic)
	}
	if v.Sign() < 0 {
		return Money{}, fmt.Errorf("%w: %q", ErrNegativeAmount, atomic)
	}
	return Money{Asset: asset, Atomic: v}, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	if m.Atomic == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(m.Atomic, -int32(m.Asset.Decimals))
}

// ToMajor renders the full-precision amount in major units.
//
// Examples:
//   - Money{USDC, 1500000}.ToMajor() → "1.500000"
func (m Money) ToMajor() string {
	return m.Decimal().StringFixed(int32(m.Asset.Decimals))
}

// Display renders the amount with places digits, truncating rather than
// rounding so a displayed balance never overstates the true value.
//
// Examples:
//   - Money{USDC, 1999999}.Display(2) → "1.99"
func (m Money) Display(places int32) string {
	return m.Decimal().Truncate(places).StringFixed(places)
}

// String renders the amount with its asset code, e.g. "1.50 USDC".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Display(2), m.Asset.Code)
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if m.Asset.Code != other.Asset.Code {
		return Money{}, ErrAssetMismatch
	}
	return Money{Asset: m.Asset, Atomic: new(big.Int).Add(m.atomic(), other.atomic())}, nil
}

// SubFloor returns m - other clamped at zero.
func (m Money) SubFloor(other Money) (Money, error) {
	if m.Asset.Code != other.Asset.Code {
		return Money{}, ErrAssetMismatch
	}
	out := new(big.Int).Sub(m.atomic(), other.atomic())
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return Money{Asset: m.Asset, Atomic: out}, nil
}

// Cmp compares the atomic amounts of m and other.
func (m Money) Cmp(other Money) int {
	return m.atomic().Cmp(other.atomic())
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.atomic().Sign() == 0
}

func (m Money) atomic() *big.Int {
	if m.Atomic == nil {
		return new(big.Int)
	}
	return m.Atomic
}
