// Package pool implements a two-asset constant-product liquidity pool with a
// fungible share token and a developer fee ledger.
//
// A pool is Empty while no shares are outstanding and Active otherwise. All
// mutating operations hold the pool's write lock for their whole duration,
// including token transfers, so reads always observe a consistent state.
package pool

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/nulln0ne/cpamm/internal/fees"
	"github.com/nulln0ne/cpamm/internal/logging"
	"github.com/nulln0ne/cpamm/pkg/cpmm"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
	"github.com/rs/zerolog"
)

// ShareDecimals is the decimal scale of every pool share token.
const ShareDecimals = 18

// Config holds the administrative parameters of a new pool.
type Config struct {
	Owner            common.Address
	FeeRecipient     common.Address
	TradingFeeBps    uint64
	DevFeeBps        uint64
	MinimumLiquidity uint64
}

type Option func(*Pool)

func WithClock(c clock.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

func WithPublisher(pub events.Publisher) Option {
	return func(p *Pool) { p.publisher = pub }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

type Pool struct {
	mu sync.RWMutex

	address common.Address
	assetA  asset.Asset
	assetB  asset.Asset
	tokenA  asset.Token
	tokenB  asset.Token
	shares  *asset.Ledger
	fees    *fees.Collector

	reserveA *uint256.Int
	reserveB *uint256.Int

	tradingFeeBps    uint64
	devFeeBps        uint64
	owner            common.Address
	feeRecipient     common.Address
	minimumLiquidity *uint256.Int

	clock     clock.Clock
	publisher events.Publisher
	logger    zerolog.Logger
	seq       uint64
}

// Address derives the identity of the pool for an asset pair. The order of
// a and b does not matter.
func Address(a, b asset.Asset) common.Address {
	if b.Less(a) {
		a, b = b, a
	}
	return common.BytesToAddress(crypto.Keccak256([]byte("cpamm/pool"), a.Bytes(), b.Bytes())[12:])
}

// New creates an empty pool for two distinct assets. The assets are stored in
// canonical order, so A is always the lesser of the two.
func New(a, b asset.Asset, tokenA, tokenB asset.Token, cfg Config, opts ...Option) (*Pool, error) {
	if a == b {
		return nil, errs.ErrSameToken.Wrap(a.String())
	}
	if cfg.TradingFeeBps > cpmm.MaxFeeBps || cfg.DevFeeBps > cfg.TradingFeeBps {
		return nil, errs.ErrInvalidFee.Wrapf("trading %d bps, dev %d bps", cfg.TradingFeeBps, cfg.DevFeeBps)
	}
	if b.Less(a) {
		a, b = b, a
		tokenA, tokenB = tokenB, tokenA
	}

	p := &Pool{
		address:          Address(a, b),
		assetA:           a,
		assetB:           b,
		tokenA:           tokenA,
		tokenB:           tokenB,
		shares:           asset.NewLedger(tokenA.Symbol()+"-"+tokenB.Symbol()+"-LP", ShareDecimals),
		fees:             fees.NewCollector(),
		reserveA:         fixedpoint.Zero(),
		reserveB:         fixedpoint.Zero(),
		tradingFeeBps:    cfg.TradingFeeBps,
		devFeeBps:        cfg.DevFeeBps,
		owner:            cfg.Owner,
		feeRecipient:     cfg.FeeRecipient,
		minimumLiquidity: fixedpoint.New(cfg.MinimumLiquidity),
		clock:            clock.New(),
		publisher:        events.Discard,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.Component(p.logger, "pool").With().Str("pool", p.address.Hex()).Logger()
	return p, nil
}

func (p *Pool) Address() common.Address { return p.address }

// Assets returns the pool's assets in canonical order.
func (p *Pool) Assets() (asset.Asset, asset.Asset) { return p.assetA, p.assetB }

// ShareToken is the pool's share ledger. It can be approved, transferred and
// staked like any other token.
func (p *Pool) ShareToken() *asset.Ledger { return p.shares }

// GetReserves returns copies of the tradable reserves.
func (p *Pool) GetReserves() (*uint256.Int, *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserveA.Clone(), p.reserveB.Clone()
}

func (p *Pool) TotalShares() *uint256.Int {
	return p.shares.TotalSupply()
}

func (p *Pool) SharesOf(owner common.Address) *uint256.Int {
	return p.shares.BalanceOf(owner)
}

// Accrued returns the developer fees of a waiting to be withdrawn.
func (p *Pool) Accrued(a asset.Asset) *uint256.Int {
	return p.fees.Accrued(a)
}

// State is a consistent copy of a pool's state.
type State struct {
	Address          common.Address `json:"address"`
	AssetA           asset.Asset    `json:"asset_a"`
	AssetB           asset.Asset    `json:"asset_b"`
	ReserveA         *uint256.Int   `json:"reserve_a"`
	ReserveB         *uint256.Int   `json:"reserve_b"`
	TotalShares      *uint256.Int   `json:"total_shares"`
	AccruedA         *uint256.Int   `json:"accrued_a"`
	AccruedB         *uint256.Int   `json:"accrued_b"`
	TradingFeeBps    uint64         `json:"trading_fee_bps"`
	DevFeeBps        uint64         `json:"dev_fee_bps"`
	Owner            common.Address `json:"owner"`
	FeeRecipient     common.Address `json:"fee_recipient"`
	MinimumLiquidity *uint256.Int   `json:"minimum_liquidity"`
}

// Empty reports whether no shares are outstanding.
func (s State) Empty() bool { return s.TotalShares.IsZero() }

func (p *Pool) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return State{
		Address:          p.address,
		AssetA:           p.assetA,
		AssetB:           p.assetB,
		ReserveA:         p.reserveA.Clone(),
		ReserveB:         p.reserveB.Clone(),
		TotalShares:      p.shares.TotalSupply(),
		AccruedA:         p.fees.Accrued(p.assetA),
		AccruedB:         p.fees.Accrued(p.assetB),
		TradingFeeBps:    p.tradingFeeBps,
		DevFeeBps:        p.devFeeBps,
		Owner:            p.owner,
		FeeRecipient:     p.feeRecipient,
		MinimumLiquidity: p.minimumLiquidity.Clone(),
	}
}

func (p *Pool) checkDeadline(deadline time.Time) error {
	if now := p.clock.Now(); now.After(deadline) {
		return errs.ErrExpired.Wrapf("now %s, deadline %s", now.UTC().Format(time.RFC3339), deadline.UTC().Format(time.RFC3339))
	}
	return nil
}

// side resolves tokenIn to the reserves and tokens on each side of a trade.
type side struct {
	assetIn, assetOut     asset.Asset
	tokenIn, tokenOut     asset.Token
	reserveIn, reserveOut *uint256.Int
	inIsA                 bool
}

func (p *Pool) side(tokenIn asset.Asset) (side, error) {
	switch tokenIn {
	case p.assetA:
		return side{p.assetA, p.assetB, p.tokenA, p.tokenB, p.reserveA, p.reserveB, true}, nil
	case p.assetB:
		return side{p.assetB, p.assetA, p.tokenB, p.tokenA, p.reserveB, p.reserveA, false}, nil
	default:
		return side{}, errs.ErrUnknownToken.Wrapf("%s is not %s or %s", tokenIn, p.assetA, p.assetB)
	}
}

func (p *Pool) tokenOf(a asset.Asset) (asset.Token, error) {
	switch a {
	case p.assetA:
		return p.tokenA, nil
	case p.assetB:
		return p.tokenB, nil
	default:
		return nil, errs.ErrUnknownToken.Wrapf("%s is not %s or %s", a, p.assetA, p.assetB)
	}
}

// emit must be called with the write lock held.
func (p *Pool) emit(kind events.Kind, actor common.Address, attrs map[string]string) {
	p.seq++
	p.publisher.Publish(events.New(p.address, p.seq, kind, actor, p.clock.Now(), attrs))
}

// pull moves amount of token from owner into the pool using the pool's
// allowance and returns a function that undoes it.
func (p *Pool) pull(token asset.Token, owner common.Address, amount *uint256.Int) (func(), error) {
	allowance := token.Allowance(owner, p.address)
	if err := token.TransferFrom(p.address, owner, p.address, amount); err != nil {
		return nil, err
	}
	return func() {
		if err := token.Transfer(p.address, owner, amount); err != nil {
			p.logger.Error().Err(err).Str("owner", owner.Hex()).Str("amount", amount.Dec()).Msg("failed to refund pulled tokens")
			return
		}
		if err := token.Approve(owner, p.address, allowance); err != nil {
			p.logger.Error().Err(err).Str("owner", owner.Hex()).Str("allowance", allowance.Dec()).Msg("failed to restore allowance")
		}
	}, nil
}

// precheck verifies that owner can fund amount of token through the pool's
// allowance.
func (p *Pool) precheck(token asset.Token, owner common.Address, amount *uint256.Int) error {
	if bal := token.BalanceOf(owner); bal.Lt(amount) {
		return errs.ErrInsufficientBalance.Wrapf("%s has %s %s, need %s", owner.Hex(), bal.Dec(), token.Symbol(), amount.Dec())
	}
	if owner == p.address {
		return nil
	}
	if allowed := token.Allowance(owner, p.address); allowed.Lt(amount) {
		return errs.ErrInsufficientAllowance.Wrapf("%s allows pool %s %s, need %s", owner.Hex(), allowed.Dec(), token.Symbol(), amount.Dec())
	}
	return nil
}
