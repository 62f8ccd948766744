package config

import "errors"

// ErrMissingRPCEndpoint indicates that a factory address was configured
// without the AMM_ETH_RPC_URL needed to reach it.
var ErrMissingRPCEndpoint = errors.New("factory_address requires AMM_ETH_RPC_URL")

// ErrInvalidConfig wraps validation failures of the loaded configuration.
var ErrInvalidConfig = errors.New("invalid configuration")
