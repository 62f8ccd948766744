package chain

import "errors"

var (
	// ErrPairMismatch is returned when src/dst are not the pair's tokens.
	ErrPairMismatch = errors.New("pair does not match src/dst")
	// ErrNoWrappedNative is returned when the native coin is looked up on a
	// factory that has no wrapped native token configured.
	ErrNoWrappedNative = errors.New("no wrapped native token configured")
)
