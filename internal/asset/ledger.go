package asset

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
)

// MaxDecimals is the largest decimal scale a ledger may declare.
const MaxDecimals = 18

var maxAllowance = new(uint256.Int).SetAllOne()

// Ledger is an in-memory fungible token with ERC-20 semantics. A maximum
// allowance is never decremented.
type Ledger struct {
	mu         sync.RWMutex
	symbol     string
	decimals   uint8
	supply     *uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

var _ Token = (*Ledger)(nil)

// NewLedger creates an empty token. Decimals above MaxDecimals are clamped.
func NewLedger(symbol string, decimals uint8) *Ledger {
	if decimals > MaxDecimals {
		decimals = MaxDecimals
	}
	return &Ledger{
		symbol:     symbol,
		decimals:   decimals,
		supply:     fixedpoint.Zero(),
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (l *Ledger) Symbol() string  { return l.symbol }
func (l *Ledger) Decimals() uint8 { return l.decimals }

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply.Clone()
}

func (l *Ledger) BalanceOf(owner common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceOf(owner).Clone()
}

func (l *Ledger) balanceOf(owner common.Address) *uint256.Int {
	if b, ok := l.balances[owner]; ok {
		return b
	}
	return fixedpoint.Zero()
}

// Mint creates amount new units owned by to.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	supply, err := fixedpoint.Add(l.supply, amount)
	if err != nil {
		return err
	}
	balance, err := fixedpoint.Add(l.balanceOf(to), amount)
	if err != nil {
		return err
	}
	l.supply = supply
	l.setBalance(to, balance)
	return nil
}

// Burn destroys amount units owned by from.
func (l *Ledger) Burn(from common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.balanceOf(from)
	if current.Lt(amount) {
		return errs.ErrInsufficientBalance.Wrapf("%s has %s %s, burning %s", from.Hex(), current.Dec(), l.symbol, amount.Dec())
	}
	l.setBalance(from, new(uint256.Int).Sub(current, amount))
	l.supply = new(uint256.Int).Sub(l.supply, amount)
	return nil
}

func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

// TransferFrom moves amount from from to to using spender's allowance. A
// holder moving its own balance needs no allowance.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if spender != from {
		allowed := l.allowance(from, spender)
		if allowed.Lt(amount) {
			return errs.ErrInsufficientAllowance.Wrapf("%s allows %s %s %s, need %s", from.Hex(), spender.Hex(), allowed.Dec(), l.symbol, amount.Dec())
		}
		if err := l.transfer(from, to, amount); err != nil {
			return err
		}
		if m, ok := l.allowances[from]; ok && !allowed.Eq(maxAllowance) {
			m[spender] = new(uint256.Int).Sub(allowed, amount)
		}
		return nil
	}
	return l.transfer(from, to, amount)
}

func (l *Ledger) transfer(from, to common.Address, amount *uint256.Int) error {
	fromBalance := l.balanceOf(from)
	if fromBalance.Lt(amount) {
		return errs.ErrInsufficientBalance.Wrapf("%s has %s %s, need %s", from.Hex(), fromBalance.Dec(), l.symbol, amount.Dec())
	}
	if from == to {
		return nil
	}
	toBalance, err := fixedpoint.Add(l.balanceOf(to), amount)
	if err != nil {
		return err
	}
	l.setBalance(from, new(uint256.Int).Sub(fromBalance, amount))
	l.setBalance(to, toBalance)
	return nil
}

func (l *Ledger) setBalance(owner common.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(l.balances, owner)
		return
	}
	l.balances[owner] = v
}

func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = m
	}
	m[spender] = amount.Clone()
	return nil
}

func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowance(owner, spender).Clone()
}

func (l *Ledger) allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := l.allowances[owner][spender]; ok {
		return a
	}
	return fixedpoint.Zero()
}

// Holders returns the number of accounts with a non-zero balance.
func (l *Ledger) Holders() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.balances)
}
