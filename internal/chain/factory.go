package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/registry"
)

const factoryABIJSON = `[
	{"type":"function","name":"getPair","stateMutability":"view",
	 "inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],
	 "outputs":[{"name":"pair","type":"address"}]},
	{"type":"function","name":"allPairs","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint256"}],
	 "outputs":[{"name":"pair","type":"address"}]},
	{"type":"function","name":"allPairsLength","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// FactoryABI is the subset of the UniswapV2Factory interface used here.
var FactoryABI = mustParseABI(factoryABIJSON)

func mustParseABI(s string) gethabi.ABI {
	parsed, err := gethabi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// FactoryDirectory resolves pools through a deployed UniswapV2Factory. The
// native coin maps to the wrapped native token.
type FactoryDirectory struct {
	client        *ethclient.Client
	factory       common.Address
	wrappedNative common.Address
}

var _ registry.Directory = (*FactoryDirectory)(nil)

func NewFactoryDirectory(client *ethclient.Client, factory, wrappedNative common.Address) *FactoryDirectory {
	return &FactoryDirectory{client: client, factory: factory, wrappedNative: wrappedNative}
}

func (f *FactoryDirectory) GetPool(ctx context.Context, a, b asset.Asset) (common.Address, error) {
	tokenA, err := f.tokenAddress(a)
	if err != nil {
		return common.Address{}, err
	}
	tokenB, err := f.tokenAddress(b)
	if err != nil {
		return common.Address{}, err
	}
	pair, err := f.callAddress(ctx, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	if pair == (common.Address{}) {
		return common.Address{}, errs.ErrPoolNotFound.Wrapf("%s/%s on factory %s", a, b, f.factory.Hex())
	}
	return pair, nil
}

func (f *FactoryDirectory) AllPools(ctx context.Context, index uint64) (common.Address, error) {
	n, err := f.AllPoolsLength(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if index >= n {
		return common.Address{}, errs.ErrPoolNotFound.Wrapf("index %d of %d", index, n)
	}
	return f.callAddress(ctx, "allPairs", new(big.Int).SetUint64(index))
}

func (f *FactoryDirectory) AllPoolsLength(ctx context.Context) (uint64, error) {
	values, err := f.call(ctx, "allPairsLength")
	if err != nil {
		return 0, err
	}
	n, ok := values[0].(*big.Int)
	if !ok || !n.IsUint64() {
		return 0, fmt.Errorf("allPairsLength: unexpected output %v", values[0])
	}
	return n.Uint64(), nil
}

func (f *FactoryDirectory) tokenAddress(a asset.Asset) (common.Address, error) {
	if !a.IsNative() {
		return a.Address, nil
	}
	if f.wrappedNative == (common.Address{}) {
		return common.Address{}, ErrNoWrappedNative
	}
	return f.wrappedNative, nil
}

func (f *FactoryDirectory) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	values, err := f.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected output type %T", method, values[0])
	}
	return addr, nil
}

func (f *FactoryDirectory) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := FactoryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("abi pack %s: %w", method, err)
	}
	out, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &f.factory, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s (factory %s): %w", method, f.factory.Hex(), err)
	}
	values, err := FactoryABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("abi unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: unexpected outputs: %d", method, len(values))
	}
	return values, nil
}
