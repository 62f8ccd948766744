package chain

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/rs/zerolog"
)

type fakeEth struct {
	blockNumber uint64
	// storage[address][positionHash] = 32-byte value
	storage map[common.Address]map[common.Hash][]byte
	// factory state
	pairs map[[2]common.Address]common.Address
	all   []common.Address
}

func (f *fakeEth) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	return hexutil.Uint64(f.blockNumber), nil
}

func (f *fakeEth) GetStorageAt(ctx context.Context, addr common.Address, position common.Hash, _ gethrpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	if m, ok := f.storage[addr]; ok {
		if v, ok2 := m[position]; ok2 {
			return hexutil.Bytes(v), nil
		}
	}
	// default empty 32 bytes
	return hexutil.Bytes(make([]byte, 32)), nil
}

// Call answers eth_call for the factory methods in FactoryABI.
func (f *fakeEth) Call(ctx context.Context, args map[string]interface{}, _ string) (hexutil.Bytes, error) {
	raw, _ := args["input"].(string)
	if raw == "" {
		raw, _ = args["data"].(string)
	}
	input, err := hexutil.Decode(raw)
	if err != nil || len(input) < 4 {
		return nil, errors.New("bad call input")
	}
	method, err := FactoryABI.MethodById(input[:4])
	if err != nil {
		return nil, err
	}
	inputs, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "getPair":
		a, b := inputs[0].(common.Address), inputs[1].(common.Address)
		pair, ok := f.pairs[[2]common.Address{a, b}]
		if !ok {
			pair = f.pairs[[2]common.Address{b, a}]
		}
		return method.Outputs.Pack(pair)
	case "allPairs":
		i := inputs[0].(*big.Int)
		if !i.IsUint64() || i.Uint64() >= uint64(len(f.all)) {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(f.all[i.Uint64()])
	case "allPairsLength":
		return method.Outputs.Pack(big.NewInt(int64(len(f.all))))
	}
	return nil, errors.New("unknown method")
}

func newInprocEthClient(t *testing.T, fe *fakeEth) *ethclient.Client {
	t.Helper()
	srv := gethrpc.NewServer()
	// Register under the standard "eth" namespace so methods map to eth_*
	if err := srv.RegisterName("eth", fe); err != nil {
		t.Fatalf("register rpc service: %v", err)
	}
	c := gethrpc.DialInProc(srv)
	return ethclient.NewClient(c)
}

func u256Bytes(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

func packReserves(r0, r1 *big.Int, ts uint32) []byte {
	v := new(big.Int).SetUint64(uint64(ts))
	v.Lsh(v, 112)
	v.Or(v, r1)
	v.Lsh(v, 112)
	v.Or(v, r0)
	return u256Bytes(v)
}

func rightPadAddress(addr common.Address) []byte {
	// Address is right-aligned in 32 bytes when read from storage
	out := make([]byte, 32)
	copy(out[12:], addr.Bytes())
	return out
}

var (
	token0 = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	token1 = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	weth   = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	pair   = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	pair2  = common.HexToAddress("0x0000000000000000000000000000000000000abd")
)

func pairStorage(r0, r1 *big.Int) map[common.Hash][]byte {
	return map[common.Hash][]byte{
		common.BigToHash(big.NewInt(slotToken0)):   rightPadAddress(token0),
		common.BigToHash(big.NewInt(slotToken1)):   rightPadAddress(token1),
		common.BigToHash(big.NewInt(slotReserves)): packReserves(r0, r1, 1_700_000_000),
	}
}

func TestPairReader_Read(t *testing.T) {
	t.Parallel()

	maxReserve := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 112), big.NewInt(1))
	fe := &fakeEth{
		blockNumber: 123,
		storage:     map[common.Address]map[common.Hash][]byte{pair: pairStorage(big.NewInt(1_000_000), maxReserve)},
	}
	r := NewPairReader(zerolog.New(io.Discard), newInprocEthClient(t, fe))

	st, err := r.Read(context.Background(), pair)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if st.Block != 123 || st.Token0 != token0 || st.Token1 != token1 {
		t.Fatalf("unexpected pair state: %+v", st)
	}
	if st.Reserve0.Cmp(big.NewInt(1_000_000)) != 0 || st.Reserve1.Cmp(maxReserve) != 0 {
		t.Fatalf("unexpected reserves: %s %s", st.Reserve0, st.Reserve1)
	}

	rIn, rOut, err := st.Reserves(token1, token0)
	if err != nil || rIn.Cmp(maxReserve) != 0 || rOut.Int64() != 1_000_000 {
		t.Fatalf("unexpected orientation: %v %v %v", rIn, rOut, err)
	}
	if _, _, err := st.Reserves(token0, weth); !errors.Is(err, ErrPairMismatch) {
		t.Fatalf("expected ErrPairMismatch, got %v", err)
	}
}

func TestFactoryDirectory(t *testing.T) {
	t.Parallel()

	factory := common.HexToAddress("0x00000000000000000000000000000000000000fa")
	fe := &fakeEth{
		blockNumber: 1,
		pairs: map[[2]common.Address]common.Address{
			{token0, token1}: pair,
			{weth, token0}:   pair2,
		},
		all: []common.Address{pair, pair2},
	}
	ctx := context.Background()
	d := NewFactoryDirectory(newInprocEthClient(t, fe), factory, weth)

	got, err := d.GetPool(ctx, asset.FungibleAsset(token1), asset.FungibleAsset(token0))
	if err != nil || got != pair {
		t.Fatalf("GetPool = %s, %v", got.Hex(), err)
	}
	got, err = d.GetPool(ctx, asset.NativeAsset(), asset.FungibleAsset(token0))
	if err != nil || got != pair2 {
		t.Fatalf("GetPool native = %s, %v", got.Hex(), err)
	}
	if _, err := d.GetPool(ctx, asset.FungibleAsset(token1), asset.FungibleAsset(weth)); !errors.Is(err, errs.ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}

	n, err := d.AllPoolsLength(ctx)
	if err != nil || n != 2 {
		t.Fatalf("AllPoolsLength = %d, %v", n, err)
	}
	got, err = d.AllPools(ctx, 1)
	if err != nil || got != pair2 {
		t.Fatalf("AllPools(1) = %s, %v", got.Hex(), err)
	}
	if _, err := d.AllPools(ctx, 2); !errors.Is(err, errs.ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}

	noWeth := NewFactoryDirectory(newInprocEthClient(t, fe), factory, common.Address{})
	if _, err := noWeth.GetPool(ctx, asset.NativeAsset(), asset.FungibleAsset(token0)); !errors.Is(err, ErrNoWrappedNative) {
		t.Fatalf("expected ErrNoWrappedNative, got %v", err)
	}
}
