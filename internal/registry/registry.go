// Package registry is the directory of pool addresses by asset pair.
package registry

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/pool"
)

// Directory looks pools up by pair or by creation index.
type Directory interface {
	GetPool(ctx context.Context, a, b asset.Asset) (common.Address, error)
	AllPools(ctx context.Context, index uint64) (common.Address, error)
	AllPoolsLength(ctx context.Context) (uint64, error)
}

type pair [2]asset.Asset

func key(a, b asset.Asset) pair {
	if b.Less(a) {
		a, b = b, a
	}
	return pair{a, b}
}

// Memory is an in-process Directory that also creates entries.
type Memory struct {
	mu    sync.RWMutex
	pairs map[pair]common.Address
	all   []common.Address
}

var _ Directory = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{pairs: make(map[pair]common.Address)}
}

// CreatePool records a new pair and returns its pool address.
func (m *Memory) CreatePool(_ context.Context, a, b asset.Asset) (common.Address, error) {
	if a == b {
		return common.Address{}, errs.ErrSameToken.Wrap(a.String())
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(a, b)
	if addr, ok := m.pairs[k]; ok {
		return common.Address{}, errs.ErrPoolExists.Wrapf("%s/%s at %s", k[0], k[1], addr.Hex())
	}
	addr := pool.Address(a, b)
	m.pairs[k] = addr
	m.all = append(m.all, addr)
	return addr, nil
}

func (m *Memory) GetPool(_ context.Context, a, b asset.Asset) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addr, ok := m.pairs[key(a, b)]
	if !ok {
		return common.Address{}, errs.ErrPoolNotFound.Wrapf("%s/%s", a, b)
	}
	return addr, nil
}

func (m *Memory) AllPools(_ context.Context, index uint64) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index >= uint64(len(m.all)) {
		return common.Address{}, errs.ErrPoolNotFound.Wrapf("index %d of %d", index, len(m.all))
	}
	return m.all[index], nil
}

func (m *Memory) AllPoolsLength(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.all)), nil
}
