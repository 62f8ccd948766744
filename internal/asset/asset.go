// Package asset models the fungible assets a pool trades and the transfer
// capability behind them. Native coin and token contracts are both reached
// through the same Token interface.
package asset

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind tags an Asset as the chain's native coin or a fungible token.
type Kind uint8

const (
	Native Kind = iota
	Fungible
)

const nativeName = "native"

// Asset identifies a tradable asset. The zero value is the native coin.
type Asset struct {
	Kind    Kind
	Address common.Address
}

// NativeAsset returns the native coin.
func NativeAsset() Asset { return Asset{Kind: Native} }

// FungibleAsset returns the token at addr.
func FungibleAsset(addr common.Address) Asset {
	return Asset{Kind: Fungible, Address: addr}
}

func (a Asset) IsNative() bool { return a.Kind == Native }

func (a Asset) String() string {
	if a.IsNative() {
		return nativeName
	}
	return a.Address.Hex()
}

// Less orders assets with the native coin first, then by address bytes.
func (a Asset) Less(b Asset) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return bytes.Compare(a.Address.Bytes(), b.Address.Bytes()) < 0
}

// Bytes returns a stable encoding used for address derivation.
func (a Asset) Bytes() []byte {
	return append([]byte{byte(a.Kind)}, a.Address.Bytes()...)
}

// Parse accepts "native" (any case) or a hex token address.
func Parse(s string) (Asset, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, nativeName) {
		return NativeAsset(), nil
	}
	if !common.IsHexAddress(s) {
		return Asset{}, fmt.Errorf("invalid asset %q", s)
	}
	return FungibleAsset(common.HexToAddress(s)), nil
}

func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Asset) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Token is the transfer capability of a fungible asset. The caller
// identity is explicit because the host, not a transaction, decides who is
// acting.
type Token interface {
	Symbol() string
	Decimals() uint8
	TotalSupply() *uint256.Int
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
	Allowance(owner, spender common.Address) *uint256.Int
}
