package pool

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/nulln0ne/cpamm/pkg/cpmm"
)

func (p *Pool) onlyOwner(caller common.Address) error {
	if caller != p.owner {
		return errs.ErrNotOwner.Wrapf("%s is not %s", caller.Hex(), p.owner.Hex())
	}
	return nil
}

// SetFeeBps changes the trading fee. It may not drop below the developer fee
// carved out of it.
func (p *Pool) SetFeeBps(caller common.Address, bps uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.onlyOwner(caller); err != nil {
		return err
	}
	if bps > cpmm.MaxFeeBps || bps < p.devFeeBps {
		return errs.ErrInvalidFee.Wrapf("trading fee %d bps with dev fee %d bps", bps, p.devFeeBps)
	}
	p.tradingFeeBps = bps
	p.feeUpdated(caller)
	return nil
}

// SetDevFeeBps changes the share of the trading fee credited to the fee
// ledger.
func (p *Pool) SetDevFeeBps(caller common.Address, bps uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.onlyOwner(caller); err != nil {
		return err
	}
	if bps > p.tradingFeeBps {
		return errs.ErrInvalidFee.Wrapf("dev fee %d bps exceeds trading fee %d bps", bps, p.tradingFeeBps)
	}
	p.devFeeBps = bps
	p.feeUpdated(caller)
	return nil
}

// SetFees applies any of a new trading fee, developer fee and fee recipient
// at once. The resulting pair of rates is checked before anything changes.
func (p *Pool) SetFees(caller common.Address, tradingBps, devBps *uint64, recipient *common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.onlyOwner(caller); err != nil {
		return err
	}
	trading, dev := p.tradingFeeBps, p.devFeeBps
	if tradingBps != nil {
		trading = *tradingBps
	}
	if devBps != nil {
		dev = *devBps
	}
	if trading > cpmm.MaxFeeBps || dev > trading {
		return errs.ErrInvalidFee.Wrapf("trading fee %d bps with dev fee %d bps", trading, dev)
	}
	p.tradingFeeBps, p.devFeeBps = trading, dev
	if recipient != nil {
		p.feeRecipient = *recipient
	}
	p.feeUpdated(caller)
	return nil
}

func (p *Pool) feeUpdated(caller common.Address) {
	p.logger.Info().Uint64("trading_fee_bps", p.tradingFeeBps).Uint64("dev_fee_bps", p.devFeeBps).Msg("fees updated")
	p.emit(events.KindFeeUpdate, caller, map[string]string{
		"trading_fee_bps": strconv.FormatUint(p.tradingFeeBps, 10),
		"dev_fee_bps":     strconv.FormatUint(p.devFeeBps, 10),
		"fee_recipient":   p.feeRecipient.Hex(),
	})
}

func (p *Pool) SetFeeRecipient(caller, recipient common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.onlyOwner(caller); err != nil {
		return err
	}
	p.feeRecipient = recipient
	p.feeUpdated(caller)
	return nil
}

func (p *Pool) TransferOwnership(caller, owner common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.onlyOwner(caller); err != nil {
		return err
	}
	p.owner = owner
	p.logger.Info().Str("owner", owner.Hex()).Msg("ownership transferred")
	p.emit(events.KindOwnership, caller, map[string]string{"owner": owner.Hex()})
	return nil
}

// WithdrawFees pays amount of accrued developer fees in a to the fee
// recipient. Either the fee recipient or the owner may trigger it.
func (p *Pool) WithdrawFees(caller common.Address, a asset.Asset, amount *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.feeRecipient && caller != p.owner {
		return errs.ErrNotFeeRecipient.Wrapf("%s is not %s", caller.Hex(), p.feeRecipient.Hex())
	}
	token, err := p.tokenOf(a)
	if err != nil {
		return err
	}
	if err := p.fees.Withdraw(a, token, p.address, p.feeRecipient, amount); err != nil {
		return err
	}

	p.logger.Info().Str("asset", a.String()).Str("amount", amount.Dec()).Str("recipient", p.feeRecipient.Hex()).Msg("fees withdrawn")
	p.emit(events.KindFeeWithdrawal, caller, map[string]string{
		"asset":     a.String(),
		"amount":    amount.Dec(),
		"recipient": p.feeRecipient.Hex(),
	})
	return nil
}
