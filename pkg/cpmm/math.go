// Package cpmm implements the constant-product market maker formulas.
// Amounts are unsigned 256-bit integers and every division truncates, so a
// pool never pays out more than the exact formula value.
package cpmm

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
)

// MaxFeeBps is the largest accepted fee rate.
const MaxFeeBps = fixedpoint.BasisPoints

// ErrInvalidFee is returned for a fee rate above MaxFeeBps or a developer
// fee larger than the trading fee it is carved from.
var ErrInvalidFee = errorsmod.Register("cpmm", 2, "invalid fee rate")

// FeeSplit is the decomposition of a swap input into the part that trades
// against the curve and the retained fee.
type FeeSplit struct {
	AfterFee *uint256.Int // amountIn * (10000 - tradingFeeBps) / 10000
	Fee      *uint256.Int // amountIn - AfterFee
	DevFee   *uint256.Int // Fee * devFeeBps / tradingFeeBps
}

// SplitFee divides amountIn according to the trading and developer fee
// rates. devFeeBps is a share of the trading fee and must not exceed it.
func SplitFee(amountIn *uint256.Int, tradingFeeBps, devFeeBps uint64) (FeeSplit, error) {
	if tradingFeeBps > MaxFeeBps || devFeeBps > tradingFeeBps {
		return FeeSplit{}, ErrInvalidFee.Wrapf("trading %d bps, dev %d bps", tradingFeeBps, devFeeBps)
	}
	after, err := fixedpoint.ApplyBps(amountIn, MaxFeeBps-tradingFeeBps)
	if err != nil {
		return FeeSplit{}, err
	}
	fee, err := fixedpoint.Sub(amountIn, after)
	if err != nil {
		return FeeSplit{}, err
	}
	dev := fixedpoint.Zero()
	if tradingFeeBps > 0 && devFeeBps > 0 {
		dev, err = fixedpoint.MulDiv(fee, fixedpoint.New(devFeeBps), fixedpoint.New(tradingFeeBps))
		if err != nil {
			return FeeSplit{}, err
		}
	}
	return FeeSplit{AfterFee: after, Fee: fee, DevFee: dev}, nil
}

// AmountOut applies the curve to an input that has already had the fee
// removed: floor(afterFee * reserveOut / (reserveIn + afterFee)).
func AmountOut(afterFee, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	denominator, err := fixedpoint.Add(reserveIn, afterFee)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(afterFee, reserveOut, denominator)
}

// GetAmountOut returns the output of swapping amountIn against the
// reserves with the given trading fee.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, tradingFeeBps uint64) (*uint256.Int, error) {
	split, err := SplitFee(amountIn, tradingFeeBps, 0)
	if err != nil {
		return nil, err
	}
	return AmountOut(split.AfterFee, reserveIn, reserveOut)
}

// Quote returns the amount of B that matches amountA at the current
// reserve ratio: floor(amountA * reserveB / reserveA).
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.MulDiv(amountA, reserveB, reserveA)
}

// InitialShares is the geometric mean of the first deposit.
func InitialShares(amountA, amountB *uint256.Int) (*uint256.Int, error) {
	product, err := fixedpoint.Mul(amountA, amountB)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Sqrt(product), nil
}

// MintShares returns min(amountA*total/reserveA, amountB*total/reserveB).
func MintShares(amountA, amountB, reserveA, reserveB, totalShares *uint256.Int) (*uint256.Int, error) {
	viaA, err := fixedpoint.MulDiv(amountA, totalShares, reserveA)
	if err != nil {
		return nil, err
	}
	viaB, err := fixedpoint.MulDiv(amountB, totalShares, reserveB)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Min(viaA, viaB), nil
}

// BurnAmounts returns the reserves owed for shares out of totalShares.
func BurnAmounts(shares, reserveA, reserveB, totalShares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	amountA, err := fixedpoint.MulDiv(shares, reserveA, totalShares)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := fixedpoint.MulDiv(shares, reserveB, totalShares)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

var bpsBig = big.NewInt(fixedpoint.BasisPoints)

// PriceImpactBps compares the execution price amountOut/amountIn with the
// spot price reserveOut/reserveIn and returns
// floor(|exec - spot| / spot * 10000).
func PriceImpactBps(amountIn, amountOut, reserveIn, reserveOut *uint256.Int) (uint64, error) {
	if amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() {
		return 0, fixedpoint.ErrDivisionByZero
	}
	// |out/in - rOut/rIn| / (rOut/rIn) = |out*rIn - in*rOut| / (in*rOut)
	var exec, spot, diff big.Int
	exec.Mul(amountOut.ToBig(), reserveIn.ToBig())
	spot.Mul(amountIn.ToBig(), reserveOut.ToBig())
	diff.Sub(&spot, &exec)
	diff.Abs(&diff)
	diff.Mul(&diff, bpsBig)
	diff.Quo(&diff, &spot)
	if !diff.IsUint64() {
		return 0, fixedpoint.ErrArithmeticOverflow
	}
	return diff.Uint64(), nil
}
