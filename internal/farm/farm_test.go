package farm

import (
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")

	lpAsset     = asset.FungibleAsset(common.HexToAddress("0x0000000000000000000000000000000000000abc"))
	rewardAsset = asset.FungibleAsset(common.HexToAddress("0x00000000000000000000000000000000000000dd"))
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

type fixture struct {
	farm   *Distributor
	lp     *asset.Ledger
	reward *asset.Ledger
	clock  *clock.Mock
	kinds  []events.Kind
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		lp:     asset.NewLedger("LP", 18),
		reward: asset.NewLedger("RWD", 18),
		clock:  clock.NewMock(),
	}
	f.clock.Set(time.Unix(1_700_000_000, 0))
	f.farm = New(lpAsset, rewardAsset, f.lp, f.reward, owner,
		WithClock(f.clock),
		WithPublisher(events.PublisherFunc(func(e events.Event) { f.kinds = append(f.kinds, e.Kind) })),
	)
	return f
}

func (f *fixture) fund(t *testing.T, amount uint64, duration time.Duration) {
	t.Helper()
	require.NoError(t, f.reward.Mint(owner, u(amount)))
	require.NoError(t, f.reward.Approve(owner, f.farm.Address(), u(amount)))
	require.NoError(t, f.farm.FundRewards(owner, u(amount), duration))
}

func (f *fixture) stake(t *testing.T, user common.Address, amount uint64) {
	t.Helper()
	require.NoError(t, f.lp.Mint(user, u(amount)))
	require.NoError(t, f.lp.Approve(user, f.farm.Address(), u(amount)))
	require.NoError(t, f.farm.Stake(user, u(amount)))
}

func (f *fixture) earned(t *testing.T, user common.Address) uint64 {
	t.Helper()
	v, err := f.farm.Earned(user)
	require.NoError(t, err)
	return v.Uint64()
}

func TestEarned_OneTokenPerSecond(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 864_000, 864_000*time.Second)
	require.Equal(t, uint64(1), f.farm.RewardRate().Uint64())
	require.Equal(t, f.clock.Now().Add(864_000*time.Second).UTC(), f.farm.PeriodFinish())

	f.stake(t, alice, 1000)
	f.clock.Add(100 * time.Second)
	require.Equal(t, uint64(100), f.earned(t, alice))

	rpt, err := f.farm.RewardPerToken()
	require.NoError(t, err)
	require.Equal(t, "100000000000000000", rpt.Dec())
}

func TestEarned_ProRataAndCheckpointed(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 10_000, 10_000*time.Second)

	f.stake(t, alice, 1000)
	f.clock.Add(50 * time.Second)
	f.stake(t, bob, 1000)
	f.clock.Add(50 * time.Second)

	require.Equal(t, uint64(75), f.earned(t, alice))
	require.Equal(t, uint64(25), f.earned(t, bob))
	require.Equal(t, uint64(2000), f.farm.TotalStaked().Uint64())
}

func TestEarned_NothingAccruesWithoutStakers(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1000, 1000*time.Second)
	f.clock.Add(100 * time.Second)

	f.stake(t, alice, 10)
	require.Zero(t, f.earned(t, alice))
	f.clock.Add(100 * time.Second)
	require.Equal(t, uint64(100), f.earned(t, alice))
}

func TestEarned_StopsAtPeriodFinish(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 100, 100*time.Second)
	f.stake(t, alice, 7)
	f.clock.Add(time.Hour)
	require.Equal(t, uint64(99), f.earned(t, alice)) // 100*1e18/7 truncates
}

func TestClaimAndExit(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1000, 1000*time.Second)
	f.stake(t, alice, 500)
	f.clock.Add(10 * time.Second)

	got, err := f.farm.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(10), got.Uint64())
	require.Equal(t, uint64(10), f.reward.BalanceOf(alice).Uint64())
	require.Zero(t, f.earned(t, alice))

	f.clock.Add(5 * time.Second)
	withdrawn, reward, err := f.farm.Exit(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(500), withdrawn.Uint64())
	require.Equal(t, uint64(5), reward.Uint64())
	require.Equal(t, uint64(500), f.lp.BalanceOf(alice).Uint64())
	require.True(t, f.farm.StakedOf(alice).IsZero())

	// nothing left
	withdrawn, reward, err = f.farm.Exit(alice)
	require.NoError(t, err)
	require.True(t, withdrawn.IsZero())
	require.True(t, reward.IsZero())

	require.Contains(t, f.kinds, events.KindClaim)
	require.Contains(t, f.kinds, events.KindUnstake)
}

func TestStakeWithdrawErrors(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.farm.Stake(alice, u(0)), errs.ErrZeroAmount)
	require.ErrorIs(t, f.farm.Stake(alice, u(10)), errs.ErrInsufficientAllowance)

	require.NoError(t, f.lp.Approve(alice, f.farm.Address(), u(10)))
	require.ErrorIs(t, f.farm.Stake(alice, u(10)), errs.ErrInsufficientBalance)
	require.True(t, f.farm.TotalStaked().IsZero())

	require.NoError(t, f.lp.Mint(alice, u(10)))
	require.NoError(t, f.farm.Stake(alice, u(10)))

	require.ErrorIs(t, f.farm.Withdraw(alice, u(11)), errs.ErrInsufficientStake)
	require.ErrorIs(t, f.farm.Withdraw(alice, u(0)), errs.ErrZeroAmount)
	require.ErrorIs(t, f.farm.Withdraw(bob, u(1)), errs.ErrInsufficientStake)
}

func TestPauseGatesStakeOnly(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1000, 1000*time.Second)
	f.stake(t, alice, 100)

	require.ErrorIs(t, f.farm.Pause(alice), errs.ErrNotOwner)
	require.NoError(t, f.farm.Pause(owner))
	require.True(t, f.farm.Paused())

	require.NoError(t, f.lp.Mint(bob, u(5)))
	require.NoError(t, f.lp.Approve(bob, f.farm.Address(), u(5)))
	require.ErrorIs(t, f.farm.Stake(bob, u(5)), errs.ErrPaused)

	f.clock.Add(10 * time.Second)
	require.NoError(t, f.farm.Withdraw(alice, u(50)))
	got, err := f.farm.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(10), got.Uint64())

	require.NoError(t, f.farm.Unpause(owner))
	require.NoError(t, f.farm.Stake(bob, u(5)))
}

func TestFundRewards(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.farm.FundRewards(alice, u(1), time.Second), errs.ErrNotOwner)
	require.ErrorIs(t, f.farm.FundRewards(owner, u(1), 0), errs.ErrZeroDuration)
	require.ErrorIs(t, f.farm.FundRewards(owner, u(1), 999*time.Millisecond), errs.ErrZeroDuration)
	require.ErrorIs(t, f.farm.FundRewards(owner, u(1), time.Second), errs.ErrInsufficientAllowance)

	f.fund(t, 1000, 100*time.Second)
	require.Equal(t, uint64(10), f.farm.RewardRate().Uint64())

	// half the period left: 500 unspent rolls into the new period
	f.clock.Add(50 * time.Second)
	f.fund(t, 500, 100*time.Second)
	require.Equal(t, uint64(10), f.farm.RewardRate().Uint64())
	require.Equal(t, f.clock.Now().Add(100*time.Second).UTC(), f.farm.PeriodFinish())
	require.Contains(t, f.kinds, events.KindFund)
}

func TestFundRewards_RateAboveBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1000, 100*time.Second)

	// rewards leave the farm behind its back
	require.NoError(t, f.reward.Burn(f.farm.Address(), u(900)))
	f.clock.Add(10 * time.Second)

	err := f.farm.FundRewards(owner, u(0), 100*time.Second)
	require.ErrorIs(t, err, errs.ErrRewardTooHigh)
	require.Equal(t, uint64(10), f.farm.RewardRate().Uint64())
}

func TestFundRewards_SameAssetBelowStaked(t *testing.T) {
	tok := asset.NewLedger("TKN", 18)
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	d := New(rewardAsset, rewardAsset, tok, tok, owner, WithClock(clk))

	require.NoError(t, tok.Mint(alice, u(1000)))
	require.NoError(t, tok.Approve(alice, d.Address(), u(1000)))
	require.NoError(t, d.Stake(alice, u(1000)))

	// the farm now holds less than its stakers' principal
	require.NoError(t, tok.Burn(d.Address(), u(500)))

	require.NoError(t, tok.Mint(owner, u(100)))
	require.NoError(t, tok.Approve(owner, d.Address(), u(100)))
	require.ErrorIs(t, d.FundRewards(owner, u(100), 100*time.Second), errs.ErrRewardTooHigh)
	require.True(t, d.RewardRate().IsZero())
	require.Equal(t, uint64(100), tok.BalanceOf(owner).Uint64())
}

func TestRewardsNeverExceedFunding(t *testing.T) {
	f := newFixture(t)
	users := []common.Address{alice, bob, owner, common.HexToAddress("0x00000000000000000000000000000000000000c3")}
	for _, usr := range users {
		require.NoError(t, f.lp.Mint(usr, u(1_000_000)))
		require.NoError(t, f.lp.Approve(usr, f.farm.Address(), new(uint256.Int).SetAllOne()))
	}

	rng := rand.New(rand.NewSource(42))
	funded, claimed := uint256.NewInt(0), uint256.NewInt(0)
	for step := 0; step < 400; step++ {
		usr := users[rng.Intn(len(users))]
		switch rng.Intn(6) {
		case 0:
			amt := uint64(rng.Intn(100_000) + 1)
			f.fund(t, amt, time.Duration(rng.Intn(500)+1)*time.Second)
			funded.Add(funded, u(amt))
		case 1, 2:
			_ = f.farm.Stake(usr, u(uint64(rng.Intn(5_000)+1)))
		case 3:
			if staked := f.farm.StakedOf(usr); !staked.IsZero() {
				require.NoError(t, f.farm.Withdraw(usr, u(uint64(rng.Int63n(int64(staked.Uint64())))+1)))
			}
		case 4:
			got, err := f.farm.Claim(usr)
			require.NoError(t, err)
			claimed.Add(claimed, got)
		case 5:
			_, got, err := f.farm.Exit(usr)
			require.NoError(t, err)
			claimed.Add(claimed, got)
		}
		f.clock.Add(time.Duration(rng.Intn(30)) * time.Second)

		total := claimed.Clone()
		for _, usr := range users {
			v, err := f.farm.Earned(usr)
			require.NoError(t, err)
			total.Add(total, v)
		}
		require.False(t, total.Gt(funded), "step %d: distributed %s of %s", step, total.Dec(), funded.Dec())
	}
	require.Equal(t, claimed.Dec(), new(uint256.Int).Sub(funded, f.reward.BalanceOf(f.farm.Address())).Dec())
}
