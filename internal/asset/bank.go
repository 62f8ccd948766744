package asset

import (
	"sort"
	"strings"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/errs"
)

// Bank resolves an Asset to the Token that moves it.
type Bank struct {
	mu     sync.RWMutex
	tokens map[Asset]Token
}

// NewBank returns a bank holding the native coin as an in-memory ledger.
func NewBank(nativeSymbol string) *Bank {
	b := &Bank{tokens: make(map[Asset]Token)}
	b.tokens[NativeAsset()] = NewLedger(nativeSymbol, MaxDecimals)
	return b
}

// Register binds a token to an asset. It fails if the asset is taken.
func (b *Bank) Register(a Asset, t Token) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tokens[a]; ok {
		return errs.ErrAssetExists.Wrapf("asset %s already registered", a)
	}
	b.tokens[a] = t
	return nil
}

// Unregister removes a. The native coin cannot be removed.
func (b *Bank) Unregister(a Asset) {
	if a.IsNative() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, a)
}

// Token returns the transfer capability for a.
func (b *Bank) Token(a Asset) (Token, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.tokens[a]
	if !ok {
		return nil, errs.ErrAssetNotFound.Wrap(a.String())
	}
	return t, nil
}

// Ledger returns the in-memory ledger behind a, for minting.
func (b *Bank) Ledger(a Asset) (*Ledger, error) {
	t, err := b.Token(a)
	if err != nil {
		return nil, err
	}
	l, ok := t.(*Ledger)
	if !ok {
		return nil, errs.ErrAssetNotFound.Wrapf("%s is not an in-memory ledger", a)
	}
	return l, nil
}

// Assets lists registered assets in canonical order.
func (b *Bank) Assets() []Asset {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Asset, 0, len(b.tokens))
	for a := range b.tokens {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// FormatUnits renders amount scaled by decimals, for display only.
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	if decimals > MaxDecimals {
		decimals = MaxDecimals
	}
	dec := sdkmath.LegacyNewDecFromBigIntWithPrec(amount.ToBig(), int64(decimals))
	s := dec.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
