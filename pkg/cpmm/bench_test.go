package cpmm

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func BenchmarkGetAmountOut(b *testing.B) {
	rIn := uint256.NewInt(13_451_234_567_890)
	rOut := uint256.NewInt(98_765_432_109_876)
	in := uint256.NewInt(1_000_000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = GetAmountOut(in, rIn, rOut, 30)
	}
}

func BenchmarkGetAmountOutBig_NoAlloc(b *testing.B) {
	rIn := new(big.Int).SetUint64(13_451_234_567_890)
	rOut := new(big.Int).SetUint64(98_765_432_109_876)
	in := new(big.Int).SetUint64(1_000_000)
	dst := new(big.Int)
	t1 := new(big.Int)
	t2 := new(big.Int)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = GetAmountOutBig(dst, t1, t2, in, rIn, rOut, 30)
	}
}
