package service

import (
	"errors"

	"github.com/nulln0ne/cpamm/internal/chain"
	"github.com/nulln0ne/cpamm/internal/errs"
)

var (
	ErrSameToken     = errs.ErrSameToken
	ErrPairMismatch  = chain.ErrPairMismatch
	ErrEmptyReserves = errs.ErrEmptyReserves
	// ErrChainUnavailable is returned when a pool is not local and no node
	// is configured to read it from.
	ErrChainUnavailable = errors.New("pool not found locally and no chain reader configured")
	// ErrNotMintable is returned when the faucet targets a token that is not
	// an in-memory ledger.
	ErrNotMintable = errors.New("token cannot be minted")
)
