package cpmm

import "math/big"

// GetAmountOutBig mirrors the single-division formula used by on-chain
// Uniswap V2 style pairs, (in*(10000-fee)*rOut) / (rIn*10000 + in*(10000-fee)).
// dst, t1 and t2 are caller-owned temporaries so repeated calls do not
// allocate.
func GetAmountOutBig(dst, t1, t2 *big.Int, amountIn, reserveIn, reserveOut *big.Int, feeBps uint64) *big.Int {
	// t1 = amountIn * (10000 - fee)
	t1.SetUint64(MaxFeeBps - feeBps)
	t1.Mul(amountIn, t1)
	// t2 = reserveIn * 10000 + t1
	t2.Mul(reserveIn, bpsBig)
	t2.Add(t2, t1)
	// dst = t1 * reserveOut / t2
	dst.Mul(t1, reserveOut)
	return dst.Div(dst, t2)
}
