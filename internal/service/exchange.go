package service

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/nulln0ne/cpamm/internal/farm"
	"github.com/nulln0ne/cpamm/internal/logging"
	"github.com/nulln0ne/cpamm/internal/pool"
	"github.com/nulln0ne/cpamm/internal/registry"
	"github.com/rs/zerolog"
)

// ReserveObserver is told about a pool's reserves after every change.
type ReserveObserver interface {
	ObserveReserves(pool common.Address, assetA asset.Asset, reserveA *uint256.Int, assetB asset.Asset, reserveB *uint256.Int, totalShares *uint256.Int)
}

type nopObserver struct{}

func (nopObserver) ObserveReserves(common.Address, asset.Asset, *uint256.Int, asset.Asset, *uint256.Int, *uint256.Int) {
}

// ExchangeOption customises an Exchange.
type ExchangeOption func(*Exchange)

func WithClock(c clock.Clock) ExchangeOption {
	return func(e *Exchange) { e.clock = c }
}

func WithPublisher(p events.Publisher) ExchangeOption {
	return func(e *Exchange) { e.publisher = p }
}

func WithEventReader(r events.Reader) ExchangeOption {
	return func(e *Exchange) { e.reader = r }
}

func WithReserveObserver(o ReserveObserver) ExchangeOption {
	return func(e *Exchange) { e.observer = o }
}

// Exchange hosts many pools and farms over one bank of tokens. Each pool and
// farm serializes its own mutations; the exchange only guards its indexes.
type Exchange struct {
	BaseService

	bank      *asset.Bank
	directory *registry.Memory
	defaults  pool.Config

	clock     clock.Clock
	publisher events.Publisher
	reader    events.Reader
	observer  ReserveObserver

	mu    sync.RWMutex
	pools map[common.Address]*pool.Pool
	farms map[common.Address]*farm.Distributor
}

// NewExchange returns an exchange creating pools with the defaults in cfg.
func NewExchange(logger zerolog.Logger, bank *asset.Bank, directory *registry.Memory, cfg pool.Config, opts ...ExchangeOption) *Exchange {
	e := &Exchange{
		BaseService: BaseService{logger: logging.Component(logger, "exchange")},
		bank:        bank,
		directory:   directory,
		defaults:    cfg,
		clock:       clock.New(),
		publisher:   events.Discard,
		observer:    nopObserver{},
		pools:       make(map[common.Address]*pool.Pool),
		farms:       make(map[common.Address]*farm.Distributor),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exchange) Bank() *asset.Bank { return e.bank }

// Now is the exchange's clock reading, used for default deadlines.
func (e *Exchange) Now() time.Time { return e.clock.Now() }

// CreatePool creates an empty pool for a pair of registered assets and
// registers its share token in the bank.
func (e *Exchange) CreatePool(ctx context.Context, a, b asset.Asset) (pool.State, error) {
	tokenA, err := e.bank.Token(a)
	if err != nil {
		return pool.State{}, err
	}
	tokenB, err := e.bank.Token(b)
	if err != nil {
		return pool.State{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	addr := pool.Address(a, b)
	if _, ok := e.pools[addr]; ok {
		return pool.State{}, errs.ErrPoolExists.Wrapf("%s/%s at %s", a, b, addr.Hex())
	}
	p, err := pool.New(a, b, tokenA, tokenB, e.defaults,
		pool.WithClock(e.clock),
		pool.WithPublisher(e.publisher),
		pool.WithLogger(e.logger),
	)
	if err != nil {
		return pool.State{}, err
	}
	if err := e.bank.Register(asset.FungibleAsset(addr), p.ShareToken()); err != nil {
		return pool.State{}, err
	}
	if _, err := e.directory.CreatePool(ctx, a, b); err != nil {
		e.bank.Unregister(asset.FungibleAsset(addr))
		return pool.State{}, err
	}
	e.pools[addr] = p

	e.logger.Info().Str("pool", addr.Hex()).Str("asset_a", a.String()).Str("asset_b", b.String()).Msg("pool created")
	return p.Snapshot(), nil
}

// Pool returns the pool at addr.
func (e *Exchange) Pool(addr common.Address) (*pool.Pool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.pools[addr]
	if !ok {
		return nil, errs.ErrPoolNotFound.Wrap(addr.Hex())
	}
	return p, nil
}

// PoolFor returns the pool trading a and b.
func (e *Exchange) PoolFor(ctx context.Context, a, b asset.Asset) (*pool.Pool, error) {
	addr, err := e.directory.GetPool(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return e.Pool(addr)
}

// Pools lists every pool in creation order.
func (e *Exchange) Pools(ctx context.Context) ([]pool.State, error) {
	n, err := e.directory.AllPoolsLength(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]pool.State, 0, n)
	for i := uint64(0); i < n; i++ {
		addr, err := e.directory.AllPools(ctx, i)
		if err != nil {
			return nil, err
		}
		p, err := e.Pool(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Snapshot())
	}
	return out, nil
}

func (e *Exchange) observe(p *pool.Pool) {
	s := p.Snapshot()
	e.observer.ObserveReserves(s.Address, s.AssetA, s.ReserveA, s.AssetB, s.ReserveB, s.TotalShares)
}

// AddLiquidity deposits into the pool at addr. Amounts are given for the
// pool's canonical asset order.
func (e *Exchange) AddLiquidity(addr, caller common.Address, amountA, amountB, minA, minB *uint256.Int, deadline time.Time) (pool.Deposit, error) {
	p, err := e.Pool(addr)
	if err != nil {
		return pool.Deposit{}, err
	}
	dep, err := p.AddLiquidity(caller, amountA, amountB, minA, minB, deadline)
	if err != nil {
		return pool.Deposit{}, err
	}
	e.observe(p)
	return dep, nil
}

func (e *Exchange) RemoveLiquidity(addr, caller common.Address, shares, minA, minB *uint256.Int, deadline time.Time) (pool.Withdrawal, error) {
	p, err := e.Pool(addr)
	if err != nil {
		return pool.Withdrawal{}, err
	}
	w, err := p.RemoveLiquidity(caller, shares, minA, minB, deadline)
	if err != nil {
		return pool.Withdrawal{}, err
	}
	e.observe(p)
	return w, nil
}

func (e *Exchange) Swap(addr, caller common.Address, tokenIn asset.Asset, amountIn, minOut *uint256.Int, deadline time.Time) (pool.SwapResult, error) {
	p, err := e.Pool(addr)
	if err != nil {
		return pool.SwapResult{}, err
	}
	res, err := p.Swap(caller, tokenIn, amountIn, minOut, deadline)
	if err != nil {
		return pool.SwapResult{}, err
	}
	e.observe(p)
	return res, nil
}

// Quote is a priced but unexecuted swap.
type Quote struct {
	TokenIn        asset.Asset  `json:"token_in"`
	AmountIn       *uint256.Int `json:"amount_in"`
	AmountOut      *uint256.Int `json:"amount_out"`
	PriceImpactBps uint64       `json:"price_impact_bps"`
	Display        string       `json:"display_amount_out"`
}

func (e *Exchange) Quote(addr common.Address, tokenIn asset.Asset, amountIn *uint256.Int) (Quote, error) {
	p, err := e.Pool(addr)
	if err != nil {
		return Quote{}, err
	}
	out, err := p.GetAmountOut(amountIn, tokenIn)
	if err != nil {
		return Quote{}, err
	}
	impact, err := p.GetPriceImpact(amountIn, tokenIn)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{TokenIn: tokenIn, AmountIn: amountIn, AmountOut: out, PriceImpactBps: impact}

	a, b := p.Assets()
	tokenOut := a
	if tokenIn == a {
		tokenOut = b
	}
	if t, err := e.bank.Token(tokenOut); err == nil {
		q.Display = asset.FormatUnits(out, t.Decimals())
	}
	return q, nil
}

// FeeUpdate carries the fee settings to change. Nil fields are left alone.
type FeeUpdate struct {
	TradingFeeBps *uint64
	DevFeeBps     *uint64
	FeeRecipient  *common.Address
}

// SetFees applies a fee update as a single change to the pool.
func (e *Exchange) SetFees(addr, caller common.Address, u FeeUpdate) (pool.State, error) {
	p, err := e.Pool(addr)
	if err != nil {
		return pool.State{}, err
	}
	if err := p.SetFees(caller, u.TradingFeeBps, u.DevFeeBps, u.FeeRecipient); err != nil {
		return pool.State{}, err
	}
	return p.Snapshot(), nil
}

func (e *Exchange) WithdrawFees(addr, caller common.Address, a asset.Asset, amount *uint256.Int) error {
	p, err := e.Pool(addr)
	if err != nil {
		return err
	}
	return p.WithdrawFees(caller, a, amount)
}

// CreateFarm creates a distributor paying reward to stakers of staking.
func (e *Exchange) CreateFarm(staking, reward asset.Asset, owner common.Address) (farm.State, error) {
	stakingToken, err := e.bank.Token(staking)
	if err != nil {
		return farm.State{}, err
	}
	rewardToken, err := e.bank.Token(reward)
	if err != nil {
		return farm.State{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	addr := farm.Address(staking, reward)
	if _, ok := e.farms[addr]; ok {
		return farm.State{}, errs.ErrFarmExists.Wrapf("%s rewarding %s at %s", staking, reward, addr.Hex())
	}
	d := farm.New(staking, reward, stakingToken, rewardToken, owner,
		farm.WithClock(e.clock),
		farm.WithPublisher(e.publisher),
		farm.WithLogger(e.logger),
	)
	e.farms[addr] = d

	e.logger.Info().Str("farm", addr.Hex()).Str("staking", staking.String()).Str("reward", reward.String()).Msg("farm created")
	return d.Snapshot()
}

func (e *Exchange) Farm(addr common.Address) (*farm.Distributor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.farms[addr]
	if !ok {
		return nil, errs.ErrFarmNotFound.Wrap(addr.Hex())
	}
	return d, nil
}

// Events lists the most recent events of a pool or farm.
func (e *Exchange) Events(ctx context.Context, source common.Address, limit int) ([]events.Event, error) {
	if e.reader == nil {
		return nil, nil
	}
	return e.reader.List(ctx, source, limit)
}

// Mint credits amount of an in-memory token to owner. It backs the
// development faucet.
func (e *Exchange) Mint(a asset.Asset, owner common.Address, amount *uint256.Int) error {
	if e.isShareToken(a) {
		return ErrNotMintable
	}
	l, err := e.bank.Ledger(a)
	if err != nil {
		return err
	}
	if err := l.Mint(owner, amount); err != nil {
		return err
	}
	e.logger.Info().Str("asset", a.String()).Str("owner", owner.Hex()).Str("amount", amount.Dec()).Msg("faucet mint")
	return nil
}

// RegisterToken creates an in-memory token at addr.
func (e *Exchange) RegisterToken(addr common.Address, symbol string, decimals uint8) (*asset.Ledger, error) {
	l := asset.NewLedger(symbol, decimals)
	if err := e.bank.Register(asset.FungibleAsset(addr), l); err != nil {
		return nil, err
	}
	e.logger.Info().Str("token", addr.Hex()).Str("symbol", symbol).Uint8("decimals", decimals).Msg("token registered")
	return l, nil
}

// Transfer moves amount of a between accounts. Pool and farm balances only
// move through their own operations.
func (e *Exchange) Transfer(a asset.Asset, from, to common.Address, amount *uint256.Int) error {
	if err := e.checkNotCustody(from); err != nil {
		return err
	}
	t, err := e.bank.Token(a)
	if err != nil {
		return err
	}
	return t.Transfer(from, to, amount)
}

// Approve sets spender's allowance over owner's balance of a and returns
// the new allowance.
func (e *Exchange) Approve(a asset.Asset, owner, spender common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := e.checkNotCustody(owner); err != nil {
		return nil, err
	}
	t, err := e.bank.Token(a)
	if err != nil {
		return nil, err
	}
	if err := t.Approve(owner, spender, amount); err != nil {
		return nil, err
	}
	return t.Allowance(owner, spender), nil
}

func (e *Exchange) checkNotCustody(addr common.Address) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.pools[addr]; ok {
		return errs.ErrCustodyAccount.Wrapf("%s is a pool", addr.Hex())
	}
	if _, ok := e.farms[addr]; ok {
		return errs.ErrCustodyAccount.Wrapf("%s is a farm", addr.Hex())
	}
	return nil
}

func (e *Exchange) isShareToken(a asset.Asset) bool {
	if a.IsNative() {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.pools[a.Address]
	return ok
}
