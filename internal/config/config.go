package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AMM"

type Config struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`

	// Administration of pools and farms created through the API.
	Owner            string `mapstructure:"owner" validate:"omitempty,eth_addr"`
	FeeRecipient     string `mapstructure:"fee_recipient" validate:"omitempty,eth_addr"`
	TradingFeeBps    uint64 `mapstructure:"trading_fee_bps" validate:"lte=10000"`
	DevFeeBps        uint64 `mapstructure:"dev_fee_bps" validate:"ltefield=TradingFeeBps"`
	MinimumLiquidity uint64 `mapstructure:"minimum_liquidity"`
	NativeSymbol     string `mapstructure:"native_symbol" validate:"required"`

	// Optional on-chain sources.
	RPCEndpoint    string `mapstructure:"eth_rpc_url" validate:"omitempty,url"`
	FactoryAddress string `mapstructure:"factory_address" validate:"omitempty,eth_addr"`
	WrappedNative  string `mapstructure:"wrapped_native" validate:"omitempty,eth_addr"`

	// Event delivery.
	DatabaseURL  string `mapstructure:"database_url"`
	EventBuffer  int    `mapstructure:"event_buffer" validate:"gt=0"`
	EventLogSize int    `mapstructure:"event_log_size" validate:"gt=0"`
}

var defaults = map[string]interface{}{
	"addr":              ":1337",
	"log_level":         "info",
	"owner":             "",
	"fee_recipient":     "",
	"trading_fee_bps":   30,
	"dev_fee_bps":       0,
	"minimum_liquidity": 0,
	"native_symbol":     "ETH",
	"eth_rpc_url":       "",
	"factory_address":   "",
	"wrapped_native":    "",
	"database_url":      "",
	"event_buffer":      1024,
	"event_log_size":    256,
}

// New returns a viper instance with defaults and AMM_* environment binding.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from v, reading file first if it is set.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.FactoryAddress != "" && cfg.RPCEndpoint == "" {
		return nil, ErrMissingRPCEndpoint
	}
	return &cfg, nil
}

// FromEnv loads .env if present and reads the configuration from the
// environment.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()
	return Load(New(), "")
}
