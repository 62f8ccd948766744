// Package fees keeps the developer fee ledger of a pool. Accrued amounts are
// held in the pool's token balance but are not part of its tradable
// reserves.
package fees

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
)

// Collector tracks fees set aside for a fee recipient, per asset.
type Collector struct {
	mu      sync.RWMutex
	accrued map[asset.Asset]*uint256.Int
}

func NewCollector() *Collector {
	return &Collector{accrued: make(map[asset.Asset]*uint256.Int)}
}

// Accrue credits amount of a to the ledger.
func (c *Collector) Accrue(a asset.Asset, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fixedpoint.Add(c.get(a), amount)
	if err != nil {
		return err
	}
	c.accrued[a] = next
	return nil
}

// Debit removes amount of a from the ledger. The caller moves the funds.
func (c *Collector) Debit(a asset.Asset, amount *uint256.Int) error {
	if amount.IsZero() {
		return errs.ErrZeroAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.get(a)
	if current.Lt(amount) {
		return errs.ErrInsufficientAccruedFees.Wrapf("%s accrued %s, requested %s", a, current.Dec(), amount.Dec())
	}
	c.accrued[a] = new(uint256.Int).Sub(current, amount)
	return nil
}

// Withdraw debits amount of a and pays it from holder to recipient through
// token. The ledger is restored if the transfer fails.
func (c *Collector) Withdraw(a asset.Asset, token asset.Token, holder, recipient common.Address, amount *uint256.Int) error {
	if err := c.Debit(a, amount); err != nil {
		return err
	}
	if err := token.Transfer(holder, recipient, amount); err != nil {
		_ = c.Accrue(a, amount)
		return err
	}
	return nil
}

// Accrued returns the amount of a available for withdrawal.
func (c *Collector) Accrued(a asset.Asset) *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.get(a).Clone()
}

// Snapshot copies the whole ledger.
func (c *Collector) Snapshot() map[asset.Asset]*uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[asset.Asset]*uint256.Int, len(c.accrued))
	for a, v := range c.accrued {
		out[a] = v.Clone()
	}
	return out
}

func (c *Collector) get(a asset.Asset) *uint256.Int {
	if v, ok := c.accrued[a]; ok {
		return v
	}
	return fixedpoint.Zero()
}
