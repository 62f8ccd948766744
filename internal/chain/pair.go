// Package chain reads Uniswap V2 style pairs and factories from an Ethereum
// node so local quotes can be checked against deployed markets.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/nulln0ne/cpamm/internal/logging"
	"github.com/rs/zerolog"
)

// Storage slots of a UniswapV2Pair:
//
//	slot 6: address token0
//	slot 7: address token1
//	slot 8: uint112 reserve0 | uint112 reserve1 | uint32 blockTimestampLast
const (
	slotToken0   = 6
	slotToken1   = 7
	slotReserves = 8
)

// PairState is a pair's tokens and reserves at one block.
type PairState struct {
	Block    uint64
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// Reserves orients the pair's reserves for a trade from src to dst.
func (s PairState) Reserves(src, dst common.Address) (reserveIn, reserveOut *big.Int, err error) {
	switch {
	case src == s.Token0 && dst == s.Token1:
		return s.Reserve0, s.Reserve1, nil
	case src == s.Token1 && dst == s.Token0:
		return s.Reserve1, s.Reserve0, nil
	default:
		return nil, nil, ErrPairMismatch
	}
}

// PairReader loads pair state straight from contract storage.
type PairReader struct {
	client *ethclient.Client
	logger zerolog.Logger
}

func NewPairReader(logger zerolog.Logger, client *ethclient.Client) *PairReader {
	return &PairReader{
		client: client,
		logger: logging.Component(logger, "pair_reader"),
	}
}

// Read returns the state of pair at the latest block. All slots are read at
// the same block number.
func (r *PairReader) Read(ctx context.Context, pair common.Address) (PairState, error) {
	bn, err := r.client.BlockNumber(ctx)
	if err != nil {
		return PairState{}, fmt.Errorf("block number: %w", err)
	}
	blockNum := new(big.Int).SetUint64(bn)

	b0, err := r.readSlot(ctx, pair, blockNum, slotToken0)
	if err != nil {
		return PairState{}, err
	}
	b1, err := r.readSlot(ctx, pair, blockNum, slotToken1)
	if err != nil {
		return PairState{}, err
	}
	br, err := r.readSlot(ctx, pair, blockNum, slotReserves)
	if err != nil {
		return PairState{}, err
	}
	reserve0, reserve1 := parseReserves(br)

	r.logger.Debug().Str("pair", pair.Hex()).Uint64("block", bn).Str("reserve0", reserve0.String()).Str("reserve1", reserve1.String()).Msg("pair loaded")
	return PairState{
		Block:    bn,
		Token0:   common.BytesToAddress(b0),
		Token1:   common.BytesToAddress(b1),
		Reserve0: reserve0,
		Reserve1: reserve1,
	}, nil
}

func (r *PairReader) readSlot(ctx context.Context, pair common.Address, blockNum *big.Int, slot uint64) ([]byte, error) {
	key := common.BigToHash(new(big.Int).SetUint64(slot))
	b, err := r.client.StorageAt(ctx, pair, key, blockNum)
	if err != nil {
		return nil, fmt.Errorf("storageAt slot %d (pair %s, block %s): %w", slot, pair.Hex(), blockNum.String(), err)
	}
	return b, nil
}

var mask112 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 112), big.NewInt(1))

// parseReserves unpacks the two big-endian uint112 reserves from the low
// 224 bits of the reserves word.
func parseReserves(b []byte) (reserve0, reserve1 *big.Int) {
	v := new(big.Int).SetBytes(b)
	reserve0 = new(big.Int).And(v, mask112)
	reserve1 = new(big.Int).And(new(big.Int).Rsh(v, 112), mask112)
	return reserve0, reserve1
}
