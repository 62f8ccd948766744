package pool

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/nulln0ne/cpamm/pkg/cpmm"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
)

// SwapResult records one executed trade. Fee is the whole retained fee and
// DevFee the part of it credited to the fee ledger.
type SwapResult struct {
	Trader    common.Address `json:"trader"`
	TokenIn   asset.Asset    `json:"token_in"`
	AmountIn  *uint256.Int   `json:"amount_in"`
	TokenOut  asset.Asset    `json:"token_out"`
	AmountOut *uint256.Int   `json:"amount_out"`
	Fee       *uint256.Int   `json:"fee"`
	DevFee    *uint256.Int   `json:"dev_fee"`
}

// Swap sells amountIn of tokenIn for the other asset. The developer share
// of the fee leaves the reserves and is credited to the fee ledger; the rest
// of the fee stays in the pool for share holders.
func (p *Pool) Swap(caller common.Address, tokenIn asset.Asset, amountIn, minAmountOut *uint256.Int, deadline time.Time) (SwapResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkDeadline(deadline); err != nil {
		return SwapResult{}, err
	}
	s, err := p.side(tokenIn)
	if err != nil {
		return SwapResult{}, err
	}
	if amountIn.IsZero() {
		return SwapResult{}, errs.ErrZeroAmount.Wrap("amount in")
	}

	split, amountOut, err := p.quote(s, amountIn, p.devFeeBps)
	if err != nil {
		return SwapResult{}, err
	}
	if amountOut.Lt(minAmountOut) {
		return SwapResult{}, errs.ErrSlippageExceeded.Wrapf("amount out %s below minimum %s", amountOut.Dec(), minAmountOut.Dec())
	}

	retained, err := fixedpoint.Sub(amountIn, split.DevFee)
	if err != nil {
		return SwapResult{}, err
	}
	nextIn, err := fixedpoint.Add(s.reserveIn, retained)
	if err != nil {
		return SwapResult{}, err
	}
	nextOut, err := fixedpoint.Sub(s.reserveOut, amountOut)
	if err != nil {
		return SwapResult{}, err
	}

	if err := p.precheck(s.tokenIn, caller, amountIn); err != nil {
		return SwapResult{}, err
	}
	undoIn, err := p.pull(s.tokenIn, caller, amountIn)
	if err != nil {
		return SwapResult{}, err
	}
	if err := s.tokenOut.Transfer(p.address, caller, amountOut); err != nil {
		undoIn()
		return SwapResult{}, err
	}
	if err := p.fees.Accrue(s.assetIn, split.DevFee); err != nil {
		// The ledger only fails on overflow, which the reserve check rules out.
		p.logger.Error().Err(err).Str("asset", s.assetIn.String()).Msg("failed to accrue dev fee")
	}
	if s.inIsA {
		p.reserveA, p.reserveB = nextIn, nextOut
	} else {
		p.reserveB, p.reserveA = nextIn, nextOut
	}

	res := SwapResult{
		Trader:    caller,
		TokenIn:   s.assetIn,
		AmountIn:  amountIn.Clone(),
		TokenOut:  s.assetOut,
		AmountOut: amountOut,
		Fee:       split.Fee,
		DevFee:    split.DevFee,
	}
	p.logger.Info().
		Str("trader", caller.Hex()).
		Str("token_in", s.assetIn.String()).
		Str("amount_in", amountIn.Dec()).
		Str("amount_out", amountOut.Dec()).
		Str("fee", split.Fee.Dec()).
		Str("dev_fee", split.DevFee.Dec()).
		Msg("swap executed")
	p.emit(events.KindSwap, caller, map[string]string{
		"token_in":   s.assetIn.String(),
		"amount_in":  amountIn.Dec(),
		"token_out":  s.assetOut.String(),
		"amount_out": amountOut.Dec(),
		"fee":        split.Fee.Dec(),
		"dev_fee":    split.DevFee.Dec(),
	})
	return res, nil
}

// quote applies the fee and the curve to amountIn without touching state.
func (p *Pool) quote(s side, amountIn *uint256.Int, devFeeBps uint64) (cpmm.FeeSplit, *uint256.Int, error) {
	if s.reserveIn.IsZero() || s.reserveOut.IsZero() {
		return cpmm.FeeSplit{}, nil, errs.ErrEmptyReserves
	}
	split, err := cpmm.SplitFee(amountIn, p.tradingFeeBps, devFeeBps)
	if err != nil {
		return cpmm.FeeSplit{}, nil, err
	}
	amountOut, err := cpmm.AmountOut(split.AfterFee, s.reserveIn, s.reserveOut)
	if err != nil {
		return cpmm.FeeSplit{}, nil, err
	}
	if amountOut.IsZero() {
		return cpmm.FeeSplit{}, nil, errs.ErrInsufficientOutputAmount.Wrapf("%s in yields nothing", amountIn.Dec())
	}
	return split, amountOut, nil
}

// GetAmountOut quotes a swap of amountIn of tokenIn at the current reserves.
func (p *Pool) GetAmountOut(amountIn *uint256.Int, tokenIn asset.Asset) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, err := p.side(tokenIn)
	if err != nil {
		return nil, err
	}
	if amountIn.IsZero() {
		return nil, errs.ErrZeroAmount.Wrap("amount in")
	}
	_, out, err := p.quote(s, amountIn, 0)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().Str("token_in", tokenIn.String()).Str("amount_in", amountIn.Dec()).Str("amount_out", out.Dec()).Msg("quote computed")
	return out, nil
}

// GetPriceImpact returns how far the execution price of a swap deviates from
// the spot price, in basis points, truncated.
func (p *Pool) GetPriceImpact(amountIn *uint256.Int, tokenIn asset.Asset) (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, err := p.side(tokenIn)
	if err != nil {
		return 0, err
	}
	if amountIn.IsZero() {
		return 0, errs.ErrZeroAmount.Wrap("amount in")
	}
	_, out, err := p.quote(s, amountIn, 0)
	if err != nil {
		return 0, err
	}
	return cpmm.PriceImpactBps(amountIn, out, s.reserveIn, s.reserveOut)
}
