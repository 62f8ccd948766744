// Package farm distributes a funded reward token to stakers of a share
// token, pro rata to stake and time.
//
// Accrual follows the reward-per-token checkpoint scheme:
//
//	lastApplicable = min(now, periodFinish)
//	rewardPerToken = stored + (lastApplicable - lastUpdate) * rate * 1e18 / totalStaked
//	earned(u)      = staked[u] * (rewardPerToken - paid[u]) / 1e18 + rewards[u]
//
// Every mutating call checkpoints the caller before touching balances.
package farm

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
	"github.com/nulln0ne/cpamm/internal/logging"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
	"github.com/rs/zerolog"
)

// precision scales rewardPerToken.
var precision = uint256.NewInt(1_000_000_000_000_000_000)

type Option func(*Distributor)

func WithClock(c clock.Clock) Option {
	return func(d *Distributor) { d.clock = c }
}

func WithPublisher(pub events.Publisher) Option {
	return func(d *Distributor) { d.publisher = pub }
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Distributor) { d.logger = l }
}

type Distributor struct {
	mu sync.RWMutex

	address      common.Address
	stakingAsset asset.Asset
	rewardAsset  asset.Asset
	stakingToken asset.Token
	rewardToken  asset.Token
	owner        common.Address
	paused       bool

	totalStaked          *uint256.Int
	staked               map[common.Address]*uint256.Int
	rewardRate           *uint256.Int
	periodFinish         uint64
	lastUpdateTime       uint64
	rewardPerTokenStored *uint256.Int
	paid                 map[common.Address]*uint256.Int
	rewards              map[common.Address]*uint256.Int

	clock     clock.Clock
	publisher events.Publisher
	logger    zerolog.Logger
	seq       uint64
}

// Address derives the identity of the farm staking one asset for another.
func Address(staking, reward asset.Asset) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("cpamm/farm"), staking.Bytes(), reward.Bytes())[12:])
}

func New(staking, reward asset.Asset, stakingToken, rewardToken asset.Token, owner common.Address, opts ...Option) *Distributor {
	d := &Distributor{
		address:              Address(staking, reward),
		stakingAsset:         staking,
		rewardAsset:          reward,
		stakingToken:         stakingToken,
		rewardToken:          rewardToken,
		owner:                owner,
		totalStaked:          fixedpoint.Zero(),
		staked:               make(map[common.Address]*uint256.Int),
		rewardRate:           fixedpoint.Zero(),
		rewardPerTokenStored: fixedpoint.Zero(),
		paid:                 make(map[common.Address]*uint256.Int),
		rewards:              make(map[common.Address]*uint256.Int),
		clock:                clock.New(),
		publisher:            events.Discard,
		logger:               zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.Component(d.logger, "farm").With().Str("farm", d.address.Hex()).Logger()
	return d
}

func (d *Distributor) Address() common.Address { return d.address }

func (d *Distributor) Assets() (staking, reward asset.Asset) {
	return d.stakingAsset, d.rewardAsset
}

func (d *Distributor) now() uint64 {
	return uint64(d.clock.Now().Unix())
}

func (d *Distributor) lastTimeRewardApplicable() uint64 {
	if now := d.now(); now < d.periodFinish {
		return now
	}
	return d.periodFinish
}

func (d *Distributor) rewardPerToken() (*uint256.Int, error) {
	if d.totalStaked.IsZero() {
		return d.rewardPerTokenStored.Clone(), nil
	}
	last := d.lastTimeRewardApplicable()
	if last <= d.lastUpdateTime {
		return d.rewardPerTokenStored.Clone(), nil
	}
	emitted, err := fixedpoint.Mul(fixedpoint.New(last-d.lastUpdateTime), d.rewardRate)
	if err != nil {
		return nil, err
	}
	delta, err := fixedpoint.MulDiv(emitted, precision, d.totalStaked)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(d.rewardPerTokenStored, delta)
}

func (d *Distributor) earned(user common.Address, rewardPerToken *uint256.Int) (*uint256.Int, error) {
	owed, err := fixedpoint.Sub(rewardPerToken, get(d.paid, user))
	if err != nil {
		return nil, err
	}
	accrued, err := fixedpoint.MulDiv(get(d.staked, user), owed, precision)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(accrued, get(d.rewards, user))
}

// checkpoint is the accrual state computed before a mutation. It is applied
// only once the mutation is certain to succeed.
type checkpoint struct {
	user           common.Address
	withUser       bool
	rewardPerToken *uint256.Int
	lastUpdate     uint64
	earned         *uint256.Int
}

func (d *Distributor) checkpoint(user common.Address, withUser bool) (checkpoint, error) {
	rpt, err := d.rewardPerToken()
	if err != nil {
		return checkpoint{}, err
	}
	cp := checkpoint{user: user, withUser: withUser, rewardPerToken: rpt, lastUpdate: d.lastTimeRewardApplicable()}
	if withUser {
		if cp.earned, err = d.earned(user, rpt); err != nil {
			return checkpoint{}, err
		}
	}
	return cp, nil
}

func (d *Distributor) apply(cp checkpoint) {
	d.rewardPerTokenStored = cp.rewardPerToken
	d.lastUpdateTime = cp.lastUpdate
	if cp.withUser {
		set(d.rewards, cp.user, cp.earned)
		set(d.paid, cp.user, cp.rewardPerToken.Clone())
	}
}

func (d *Distributor) onlyOwner(caller common.Address) error {
	if caller != d.owner {
		return errs.ErrNotOwner.Wrapf("%s is not %s", caller.Hex(), d.owner.Hex())
	}
	return nil
}

// emit must be called with the write lock held.
func (d *Distributor) emit(kind events.Kind, actor common.Address, attrs map[string]string) {
	d.seq++
	d.publisher.Publish(events.New(d.address, d.seq, kind, actor, d.clock.Now(), attrs))
}

func get(m map[common.Address]*uint256.Int, k common.Address) *uint256.Int {
	if v, ok := m[k]; ok {
		return v
	}
	return fixedpoint.Zero()
}

func set(m map[common.Address]*uint256.Int, k common.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(m, k)
		return
	}
	m[k] = v
}

// Earned returns the rewards user could claim now.
func (d *Distributor) Earned(user common.Address) (*uint256.Int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rpt, err := d.rewardPerToken()
	if err != nil {
		return nil, err
	}
	return d.earned(user, rpt)
}

func (d *Distributor) RewardPerToken() (*uint256.Int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rewardPerToken()
}

func (d *Distributor) StakedOf(user common.Address) *uint256.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return get(d.staked, user).Clone()
}

func (d *Distributor) TotalStaked() *uint256.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.totalStaked.Clone()
}

func (d *Distributor) RewardRate() *uint256.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rewardRate.Clone()
}

func (d *Distributor) PeriodFinish() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return time.Unix(int64(d.periodFinish), 0).UTC()
}

func (d *Distributor) Paused() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.paused
}

// State is a consistent copy of a farm's global state.
type State struct {
	Address        common.Address `json:"address"`
	StakingAsset   asset.Asset    `json:"staking_asset"`
	RewardAsset    asset.Asset    `json:"reward_asset"`
	Owner          common.Address `json:"owner"`
	Paused         bool           `json:"paused"`
	TotalStaked    *uint256.Int   `json:"total_staked"`
	RewardRate     *uint256.Int   `json:"reward_rate"`
	RewardPerToken *uint256.Int   `json:"reward_per_token"`
	PeriodFinish   time.Time      `json:"period_finish"`
	Stakers        int            `json:"stakers"`
}

func (d *Distributor) Snapshot() (State, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rpt, err := d.rewardPerToken()
	if err != nil {
		return State{}, err
	}
	return State{
		Address:        d.address,
		StakingAsset:   d.stakingAsset,
		RewardAsset:    d.rewardAsset,
		Owner:          d.owner,
		Paused:         d.paused,
		TotalStaked:    d.totalStaked.Clone(),
		RewardRate:     d.rewardRate.Clone(),
		RewardPerToken: rpt,
		PeriodFinish:   time.Unix(int64(d.periodFinish), 0).UTC(),
		Stakers:        len(d.staked),
	}, nil
}
