// Package fixedpoint provides overflow-checked unsigned 256-bit arithmetic
// for token amounts. Every operation truncates toward zero.
package fixedpoint

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

// Codespace is the error codespace for arithmetic failures.
const Codespace = "fixedpoint"

var (
	// ErrArithmeticOverflow is returned when a result does not fit in 256
	// bits or a subtraction would go below zero.
	ErrArithmeticOverflow = errorsmod.Register(Codespace, 2, "arithmetic overflow")
	// ErrDivisionByZero is returned when a divisor is zero.
	ErrDivisionByZero = errorsmod.Register(Codespace, 3, "division by zero")
)

// BasisPoints is the denominator for fee rates.
const BasisPoints = 10_000

// Zero returns a new zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// New returns v as a 256-bit integer.
func New(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// MulDiv computes floor(a*b/d) using a 512-bit intermediate product.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrArithmeticOverflow.Wrapf("%s * %s / %s", a.Dec(), b.Dec(), d.Dec())
	}
	return z, nil
}

// Div computes floor(a/d).
func Div(a, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, d), nil
}

func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow.Wrapf("%s + %s", a.Dec(), b.Dec())
	}
	return z, nil
}

// Sub returns a-b, failing when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrArithmeticOverflow.Wrapf("%s - %s", a.Dec(), b.Dec())
	}
	return z, nil
}

func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow.Wrapf("%s * %s", a.Dec(), b.Dec())
	}
	return z, nil
}

// Sqrt returns floor(sqrt(a)).
func Sqrt(a *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(a)
}

// Min returns a copy of the smaller value.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// ApplyBps returns floor(amount*bps/10000).
func ApplyBps(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return MulDiv(amount, New(bps), New(BasisPoints))
}

// Parse reads a base-10 amount. Hex with a 0x prefix is also accepted.
func Parse(s string) (*uint256.Int, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}
