// Package errs defines the error kinds returned by pools, fee ledgers and
// farms. Each kind is registered with a stable code so callers can tell a
// slippage failure from an exhausted stake from an internal bug.
package errs

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/nulln0ne/cpamm/pkg/cpmm"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
)

// Codespace is the codespace for pool and farm errors.
const Codespace = "amm"

// Validation errors.
var (
	ErrZeroAmount                  = errorsmod.Register(Codespace, 2, "amount must be greater than zero")
	ErrUnknownToken                = errorsmod.Register(Codespace, 3, "token is not part of the pool")
	ErrInsufficientShares          = errorsmod.Register(Codespace, 4, "insufficient pool shares")
	ErrInsufficientStake           = errorsmod.Register(Codespace, 5, "insufficient stake")
	ErrExpired                     = errorsmod.Register(Codespace, 6, "deadline expired")
	ErrSlippageExceeded            = errorsmod.Register(Codespace, 7, "slippage exceeded")
	ErrZeroDuration                = errorsmod.Register(Codespace, 8, "reward duration must be greater than zero")
	ErrSameToken                   = errorsmod.Register(Codespace, 9, "pool tokens must differ")
	ErrInsufficientOutputAmount    = errorsmod.Register(Codespace, 10, "insufficient output amount")
	ErrInsufficientLiquidityMinted = errorsmod.Register(Codespace, 11, "insufficient liquidity minted")
	ErrRewardTooHigh               = errorsmod.Register(Codespace, 12, "reward rate exceeds funded balance")
)

// Authorization errors.
var (
	ErrNotOwner        = errorsmod.Register(Codespace, 20, "caller is not the owner")
	ErrNotFeeRecipient = errorsmod.Register(Codespace, 21, "caller is not the fee recipient")
	ErrCustodyAccount  = errorsmod.Register(Codespace, 22, "account is held by a pool or farm")
)

// State errors.
var (
	ErrPaused                  = errorsmod.Register(Codespace, 30, "staking is paused")
	ErrInsufficientAccruedFees = errorsmod.Register(Codespace, 31, "insufficient accrued fees")
	ErrEmptyReserves           = errorsmod.Register(Codespace, 32, "pool has no reserves")
	ErrInsufficientBalance     = errorsmod.Register(Codespace, 33, "insufficient balance")
	ErrInsufficientAllowance   = errorsmod.Register(Codespace, 34, "insufficient allowance")
	ErrPoolNotFound            = errorsmod.Register(Codespace, 35, "pool not found")
	ErrFarmNotFound            = errorsmod.Register(Codespace, 36, "farm not found")
	ErrPoolExists              = errorsmod.Register(Codespace, 37, "pool already exists")
	ErrAssetNotFound           = errorsmod.Register(Codespace, 38, "asset not registered")
	ErrFarmExists              = errorsmod.Register(Codespace, 39, "farm already exists")
	ErrAssetExists             = errorsmod.Register(Codespace, 40, "asset already registered")
)

// Kinds defined next to the math they guard.
var (
	ErrInvalidFee         = cpmm.ErrInvalidFee
	ErrArithmeticOverflow = fixedpoint.ErrArithmeticOverflow
	ErrDivisionByZero     = fixedpoint.ErrDivisionByZero
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindArithmetic
	KindUnauthorized
	KindState
	KindNotFound
	KindConflict
)

var kinds = map[*errorsmod.Error]Kind{
	ErrZeroAmount:                  KindValidation,
	ErrUnknownToken:                KindValidation,
	ErrInsufficientShares:          KindValidation,
	ErrInsufficientStake:           KindValidation,
	ErrExpired:                     KindValidation,
	ErrSlippageExceeded:            KindValidation,
	ErrZeroDuration:                KindValidation,
	ErrSameToken:                   KindValidation,
	ErrInsufficientOutputAmount:    KindValidation,
	ErrInsufficientLiquidityMinted: KindValidation,
	ErrRewardTooHigh:               KindValidation,
	ErrInvalidFee:                  KindValidation,
	ErrArithmeticOverflow:          KindArithmetic,
	ErrDivisionByZero:              KindArithmetic,
	ErrNotOwner:                    KindUnauthorized,
	ErrNotFeeRecipient:             KindUnauthorized,
	ErrCustodyAccount:              KindUnauthorized,
	ErrPaused:                      KindState,
	ErrInsufficientAccruedFees:     KindState,
	ErrEmptyReserves:               KindState,
	ErrInsufficientBalance:         KindState,
	ErrInsufficientAllowance:       KindState,
	ErrPoolNotFound:                KindNotFound,
	ErrFarmNotFound:                KindNotFound,
	ErrAssetNotFound:               KindNotFound,
	ErrPoolExists:                  KindConflict,
	ErrFarmExists:                  KindConflict,
	ErrAssetExists:                 KindConflict,
}

// KindOf returns the kind of err, or KindInternal for errors that are not
// one of the registered kinds.
func KindOf(err error) (Kind, *errorsmod.Error) {
	for e, k := range kinds {
		if errors.Is(err, e) {
			return k, e
		}
	}
	return KindInternal, nil
}
