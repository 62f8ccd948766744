package farm

import (
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
)

// Stake locks amount of the staking token from user. The farm must be
// approved to spend it.
func (d *Distributor) Stake(user common.Address, amount *uint256.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if amount.IsZero() {
		return errs.ErrZeroAmount.Wrap("stake")
	}
	if d.paused {
		return errs.ErrPaused
	}
	cp, err := d.checkpoint(user, true)
	if err != nil {
		return err
	}
	total, err := fixedpoint.Add(d.totalStaked, amount)
	if err != nil {
		return err
	}
	if err := d.stakingToken.TransferFrom(d.address, user, d.address, amount); err != nil {
		return err
	}

	d.apply(cp)
	d.totalStaked = total
	set(d.staked, user, new(uint256.Int).Add(get(d.staked, user), amount))

	d.logger.Info().Str("user", user.Hex()).Str("amount", amount.Dec()).Msg("staked")
	d.emit(events.KindStake, user, map[string]string{"amount": amount.Dec()})
	return nil
}

// Withdraw unlocks amount of user's stake. It works while the farm is
// paused.
func (d *Distributor) Withdraw(user common.Address, amount *uint256.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withdraw(user, amount)
}

func (d *Distributor) withdraw(user common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return errs.ErrZeroAmount.Wrap("withdraw")
	}
	staked := get(d.staked, user)
	if staked.Lt(amount) {
		return errs.ErrInsufficientStake.Wrapf("%s staked %s, withdrawing %s", user.Hex(), staked.Dec(), amount.Dec())
	}
	cp, err := d.checkpoint(user, true)
	if err != nil {
		return err
	}
	if err := d.stakingToken.Transfer(d.address, user, amount); err != nil {
		return err
	}

	d.apply(cp)
	d.totalStaked = new(uint256.Int).Sub(d.totalStaked, amount)
	set(d.staked, user, new(uint256.Int).Sub(staked, amount))

	d.logger.Info().Str("user", user.Hex()).Str("amount", amount.Dec()).Msg("withdrawn")
	d.emit(events.KindUnstake, user, map[string]string{"amount": amount.Dec()})
	return nil
}

// Claim pays out user's accrued rewards and returns the amount paid.
func (d *Distributor) Claim(user common.Address) (*uint256.Int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claim(user)
}

func (d *Distributor) claim(user common.Address) (*uint256.Int, error) {
	cp, err := d.checkpoint(user, true)
	if err != nil {
		return nil, err
	}
	reward := cp.earned
	if !reward.IsZero() {
		if err := d.rewardToken.Transfer(d.address, user, reward); err != nil {
			return nil, err
		}
	}
	cp.earned = fixedpoint.Zero()
	d.apply(cp)

	if !reward.IsZero() {
		d.logger.Info().Str("user", user.Hex()).Str("reward", reward.Dec()).Msg("reward claimed")
		d.emit(events.KindClaim, user, map[string]string{"reward": reward.Dec()})
	}
	return reward, nil
}

// Exit withdraws user's whole stake and claims its rewards.
func (d *Distributor) Exit(user common.Address) (withdrawn, reward *uint256.Int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	withdrawn = get(d.staked, user).Clone()
	if !withdrawn.IsZero() {
		if err := d.withdraw(user, withdrawn); err != nil {
			return nil, nil, err
		}
	}
	reward, err = d.claim(user)
	if err != nil {
		return nil, nil, err
	}
	return withdrawn, reward, nil
}

// FundRewards pulls amount of the reward token from the owner and spreads
// it, with whatever the current period has left, over duration.
func (d *Distributor) FundRewards(caller common.Address, amount *uint256.Int, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.onlyOwner(caller); err != nil {
		return err
	}
	seconds := uint64(duration / time.Second)
	if seconds == 0 {
		return errs.ErrZeroDuration
	}
	cp, err := d.checkpoint(common.Address{}, false)
	if err != nil {
		return err
	}

	now := d.now()
	total := amount.Clone()
	if now < d.periodFinish {
		leftover, err := fixedpoint.Mul(fixedpoint.New(d.periodFinish-now), d.rewardRate)
		if err != nil {
			return err
		}
		if total, err = fixedpoint.Add(total, leftover); err != nil {
			return err
		}
	}
	rate := new(uint256.Int).Div(total, fixedpoint.New(seconds))

	if !amount.IsZero() {
		if err := d.rewardToken.TransferFrom(d.address, caller, d.address, amount); err != nil {
			return err
		}
	}
	available := d.rewardToken.BalanceOf(d.address)
	if d.stakingAsset == d.rewardAsset {
		if free, err := fixedpoint.Sub(available, d.totalStaked); err == nil {
			available = free
		} else {
			available = fixedpoint.Zero()
		}
	}
	if rate.Gt(new(uint256.Int).Div(available, fixedpoint.New(seconds))) {
		if !amount.IsZero() {
			if err := d.rewardToken.Transfer(d.address, caller, amount); err != nil {
				d.logger.Error().Err(err).Str("caller", caller.Hex()).Str("amount", amount.Dec()).Msg("failed to return rejected funding")
			}
		}
		return errs.ErrRewardTooHigh.Wrapf("rate %s over %ds exceeds balance %s", rate.Dec(), seconds, available.Dec())
	}

	d.apply(cp)
	d.rewardRate = rate
	d.lastUpdateTime = now
	d.periodFinish = now + seconds

	d.logger.Info().Str("amount", amount.Dec()).Str("rate", rate.Dec()).Uint64("duration", seconds).Msg("rewards funded")
	d.emit(events.KindFund, caller, map[string]string{
		"amount":   amount.Dec(),
		"rate":     rate.Dec(),
		"duration": strconv.FormatUint(seconds, 10),
	})
	return nil
}

// Pause stops new stakes. Withdrawals and claims keep working.
func (d *Distributor) Pause(caller common.Address) error {
	return d.setPaused(caller, true)
}

func (d *Distributor) Unpause(caller common.Address) error {
	return d.setPaused(caller, false)
}

func (d *Distributor) setPaused(caller common.Address, paused bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.onlyOwner(caller); err != nil {
		return err
	}
	d.paused = paused
	d.emit(events.KindPause, caller, map[string]string{"paused": strconv.FormatBool(paused)})
	return nil
}

func (d *Distributor) TransferOwnership(caller, owner common.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.onlyOwner(caller); err != nil {
		return err
	}
	d.owner = owner
	d.emit(events.KindOwnership, caller, map[string]string{"owner": owner.Hex()})
	return nil
}
