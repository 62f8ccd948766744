package service

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/chain"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/logging"
	"github.com/nulln0ne/cpamm/internal/registry"
	"github.com/nulln0ne/cpamm/pkg/cpmm"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
	"github.com/rs/zerolog"
)

// ChainFeeBps is the fee charged by deployed Uniswap V2 pairs.
const ChainFeeBps = 30

// EstimateService prices a swap against a local pool, or against a deployed
// pair read from chain storage when the address is not a local pool.
type EstimateService struct {
	BaseService
	exchange  *Exchange
	pairs     *chain.PairReader
	directory registry.Directory
}

// NewEstimateService constructs an EstimateService. pairs and directory may
// be nil, in which case only local pools can be estimated or resolved.
func NewEstimateService(logger zerolog.Logger, exchange *Exchange, pairs *chain.PairReader, directory registry.Directory) *EstimateService {
	return &EstimateService{
		BaseService: BaseService{logger: logging.Component(logger, "estimate")},
		exchange:    exchange,
		pairs:       pairs,
		directory:   directory,
	}
}

// ResolvePool finds the pool trading src against dst, preferring a local
// pool over the configured directory.
func (e *EstimateService) ResolvePool(ctx context.Context, src, dst common.Address) (common.Address, error) {
	if src == dst {
		return common.Address{}, ErrSameToken
	}
	if e.exchange != nil {
		p, err := e.exchange.PoolFor(ctx, assetOf(src), assetOf(dst))
		if err == nil {
			return p.Address(), nil
		}
		if !errors.Is(err, errs.ErrPoolNotFound) {
			return common.Address{}, err
		}
	}
	if e.directory == nil {
		return common.Address{}, errs.ErrPoolNotFound.Wrapf("%s/%s", src.Hex(), dst.Hex())
	}
	return e.directory.GetPool(ctx, assetOf(src), assetOf(dst))
}

// Estimate computes the expected output amount for swapping amountIn of src
// to dst in pool. On local pools the zero address stands for the native coin.
func (e *EstimateService) Estimate(ctx context.Context, pool, src, dst common.Address, amountIn *big.Int) (*big.Int, error) {
	e.logger.Debug().Str("pool", pool.Hex()).Str("src", src.Hex()).Str("dst", dst.Hex()).Str("in", amountIn.String()).Msg("estimating swap")

	if src == dst {
		return nil, ErrSameToken
	}

	out, err := e.estimateLocal(pool, src, dst, amountIn)
	if !errors.Is(err, errs.ErrPoolNotFound) {
		return out, err
	}
	if e.pairs == nil {
		return nil, ErrChainUnavailable
	}
	return e.estimateChain(ctx, pool, src, dst, amountIn)
}

func (e *EstimateService) estimateLocal(pool, src, dst common.Address, amountIn *big.Int) (*big.Int, error) {
	if e.exchange == nil {
		return nil, errs.ErrPoolNotFound
	}
	p, err := e.exchange.Pool(pool)
	if err != nil {
		return nil, err
	}
	in, out := assetOf(src), assetOf(dst)
	a, b := p.Assets()
	if !(in == a && out == b) && !(in == b && out == a) {
		return nil, ErrPairMismatch
	}
	amt, overflow := uint256.FromBig(amountIn)
	if overflow {
		return nil, fixedpoint.ErrArithmeticOverflow.Wrapf("amount in %s", amountIn)
	}
	res, err := p.GetAmountOut(amt, in)
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Str("out", res.Dec()).Msg("local amount out computed")
	return res.ToBig(), nil
}

func (e *EstimateService) estimateChain(ctx context.Context, pool, src, dst common.Address, amountIn *big.Int) (*big.Int, error) {
	state, err := e.pairs.Read(ctx, pool)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, err := state.Reserves(src, dst)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrEmptyReserves
	}

	var outAmt, tmp1, tmp2 big.Int
	out := cpmm.GetAmountOutBig(&outAmt, &tmp1, &tmp2, amountIn, reserveIn, reserveOut, ChainFeeBps)
	e.logger.Debug().Uint64("block", state.Block).Str("out", out.String()).Msg("chain amount out computed")
	return out, nil
}

func assetOf(addr common.Address) asset.Asset {
	if addr == (common.Address{}) {
		return asset.NativeAsset()
	}
	return asset.FungibleAsset(addr)
}
