package pool

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/nulln0ne/cpamm/pkg/cpmm"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
)

// Deposit is the outcome of AddLiquidity.
type Deposit struct {
	AmountA *uint256.Int `json:"amount_a"`
	AmountB *uint256.Int `json:"amount_b"`
	Shares  *uint256.Int `json:"shares"`
}

// Withdrawal is the outcome of RemoveLiquidity.
type Withdrawal struct {
	AmountA *uint256.Int `json:"amount_a"`
	AmountB *uint256.Int `json:"amount_b"`
	Shares  *uint256.Int `json:"shares"`
}

// AddLiquidity deposits up to the desired amounts from caller and mints
// shares to it. The first deposit sets the price; later deposits are cut
// down to the current reserve ratio. The pool must be approved to spend
// both amounts.
func (p *Pool) AddLiquidity(caller common.Address, amountADesired, amountBDesired, minA, minB *uint256.Int, deadline time.Time) (Deposit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkDeadline(deadline); err != nil {
		return Deposit{}, err
	}
	if amountADesired.IsZero() || amountBDesired.IsZero() {
		return Deposit{}, errs.ErrZeroAmount.Wrap("both desired amounts must be positive")
	}

	total := p.shares.TotalSupply()
	var (
		amountA, amountB *uint256.Int
		minted, locked   = fixedpoint.Zero(), fixedpoint.Zero()
		err              error
	)
	if total.IsZero() {
		amountA, amountB = amountADesired.Clone(), amountBDesired.Clone()
		liquidity, err := cpmm.InitialShares(amountA, amountB)
		if err != nil {
			return Deposit{}, err
		}
		if !liquidity.Gt(p.minimumLiquidity) {
			return Deposit{}, errs.ErrInsufficientLiquidityMinted.Wrapf("initial liquidity %s does not exceed minimum %s", liquidity.Dec(), p.minimumLiquidity.Dec())
		}
		locked = p.minimumLiquidity.Clone()
		minted = new(uint256.Int).Sub(liquidity, locked)
	} else {
		amountA, amountB, err = p.optimalAmounts(amountADesired, amountBDesired)
		if err != nil {
			return Deposit{}, err
		}
		minted, err = cpmm.MintShares(amountA, amountB, p.reserveA, p.reserveB, total)
		if err != nil {
			return Deposit{}, err
		}
		if minted.IsZero() {
			return Deposit{}, errs.ErrInsufficientLiquidityMinted.Wrapf("deposit of %s/%s mints no shares", amountA.Dec(), amountB.Dec())
		}
	}
	if amountA.Lt(minA) || amountB.Lt(minB) {
		return Deposit{}, errs.ErrSlippageExceeded.Wrapf("deposit %s/%s below minimum %s/%s", amountA.Dec(), amountB.Dec(), minA.Dec(), minB.Dec())
	}

	nextA, err := fixedpoint.Add(p.reserveA, amountA)
	if err != nil {
		return Deposit{}, err
	}
	nextB, err := fixedpoint.Add(p.reserveB, amountB)
	if err != nil {
		return Deposit{}, err
	}
	if _, err := fixedpoint.Add(total, new(uint256.Int).Add(minted, locked)); err != nil {
		return Deposit{}, err
	}

	if err := p.precheck(p.tokenA, caller, amountA); err != nil {
		return Deposit{}, err
	}
	if err := p.precheck(p.tokenB, caller, amountB); err != nil {
		return Deposit{}, err
	}
	undoA, err := p.pull(p.tokenA, caller, amountA)
	if err != nil {
		return Deposit{}, err
	}
	if _, err := p.pull(p.tokenB, caller, amountB); err != nil {
		undoA()
		return Deposit{}, err
	}

	if !locked.IsZero() {
		_ = p.shares.Mint(common.Address{}, locked)
	}
	_ = p.shares.Mint(caller, minted)
	p.reserveA, p.reserveB = nextA, nextB

	p.logger.Info().
		Str("provider", caller.Hex()).
		Str("amount_a", amountA.Dec()).
		Str("amount_b", amountB.Dec()).
		Str("shares", minted.Dec()).
		Msg("liquidity added")
	p.emit(events.KindMint, caller, map[string]string{
		"amount_a": amountA.Dec(),
		"amount_b": amountB.Dec(),
		"shares":   minted.Dec(),
		"locked":   locked.Dec(),
	})
	return Deposit{AmountA: amountA, AmountB: amountB, Shares: minted}, nil
}

// optimalAmounts returns the largest pair within the desired amounts that
// matches the reserve ratio.
func (p *Pool) optimalAmounts(amountADesired, amountBDesired *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	optimalB, err := cpmm.Quote(amountADesired, p.reserveA, p.reserveB)
	if err != nil {
		return nil, nil, err
	}
	if !optimalB.Gt(amountBDesired) {
		return amountADesired.Clone(), optimalB, nil
	}
	optimalA, err := cpmm.Quote(amountBDesired, p.reserveB, p.reserveA)
	if err != nil {
		return nil, nil, err
	}
	return optimalA, amountBDesired.Clone(), nil
}

// RemoveLiquidity burns shares from caller and pays out its portion of both
// reserves. Burning every outstanding share pays out the reserves exactly.
func (p *Pool) RemoveLiquidity(caller common.Address, shares, minA, minB *uint256.Int, deadline time.Time) (Withdrawal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkDeadline(deadline); err != nil {
		return Withdrawal{}, err
	}
	if shares.IsZero() {
		return Withdrawal{}, errs.ErrZeroAmount.Wrap("shares")
	}
	if held := p.shares.BalanceOf(caller); held.Lt(shares) {
		return Withdrawal{}, errs.ErrInsufficientShares.Wrapf("%s holds %s shares, burning %s", caller.Hex(), held.Dec(), shares.Dec())
	}

	total := p.shares.TotalSupply()
	amountA, amountB, err := cpmm.BurnAmounts(shares, p.reserveA, p.reserveB, total)
	if err != nil {
		return Withdrawal{}, err
	}
	if amountA.Lt(minA) || amountB.Lt(minB) {
		return Withdrawal{}, errs.ErrSlippageExceeded.Wrapf("withdrawal %s/%s below minimum %s/%s", amountA.Dec(), amountB.Dec(), minA.Dec(), minB.Dec())
	}
	if amountA.IsZero() && amountB.IsZero() {
		return Withdrawal{}, errs.ErrInsufficientOutputAmount.Wrapf("burning %s shares returns nothing", shares.Dec())
	}

	if err := p.shares.Burn(caller, shares); err != nil {
		return Withdrawal{}, errs.ErrInsufficientShares.Wrap(err.Error())
	}
	if err := p.tokenA.Transfer(p.address, caller, amountA); err != nil {
		_ = p.shares.Mint(caller, shares)
		return Withdrawal{}, err
	}
	if err := p.tokenB.Transfer(p.address, caller, amountB); err != nil {
		if rerr := p.tokenA.Transfer(caller, p.address, amountA); rerr != nil {
			p.logger.Error().Err(rerr).Str("provider", caller.Hex()).Msg("failed to return paid out tokens")
		}
		_ = p.shares.Mint(caller, shares)
		return Withdrawal{}, err
	}
	p.reserveA = new(uint256.Int).Sub(p.reserveA, amountA)
	p.reserveB = new(uint256.Int).Sub(p.reserveB, amountB)

	p.logger.Info().
		Str("provider", caller.Hex()).
		Str("amount_a", amountA.Dec()).
		Str("amount_b", amountB.Dec()).
		Str("shares", shares.Dec()).
		Msg("liquidity removed")
	p.emit(events.KindBurn, caller, map[string]string{
		"amount_a": amountA.Dec(),
		"amount_b": amountB.Dec(),
		"shares":   shares.Dec(),
	})
	return Withdrawal{AmountA: amountA, AmountB: amountB, Shares: shares.Clone()}, nil
}
