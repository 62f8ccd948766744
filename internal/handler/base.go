// Package handler defines HTTP request handlers and related utilities.
package handler

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/logging"
	"github.com/nulln0ne/cpamm/pkg/fixedpoint"
	"github.com/rs/zerolog"
)

// DefaultDeadline is applied to mutating requests that carry no deadline.
const DefaultDeadline = 20 * time.Minute

// BaseHandler provides common dependencies for HTTP handlers.
type BaseHandler struct {
	logger   zerolog.Logger
	validate *validator.Validate
}

func newBaseHandler(logger zerolog.Logger, component string) BaseHandler {
	return BaseHandler{
		logger:   logging.Component(logger, component),
		validate: validator.New(),
	}
}

// bindBody decodes and validates a JSON request body.
func (h *BaseHandler) bindBody(c fiber.Ctx, out interface{}) error {
	if err := c.Bind().Body(out); err != nil {
		h.logger.Debug().Err(err).Msg("failed to bind request body")
		return ErrInvalidBody
	}
	return h.check(out)
}

// bindQuery decodes and validates query parameters.
func (h *BaseHandler) bindQuery(c fiber.Ctx, out interface{}) error {
	if err := c.Bind().Query(out); err != nil {
		h.logger.Debug().Err(err).Msg("failed to bind query parameters")
		return ErrInvalidQueryParameters
	}
	return h.check(out)
}

func (h *BaseHandler) check(out interface{}) error {
	if err := h.validate.Struct(out); err != nil {
		return NewValidationError(err)
	}
	return nil
}

func addressParam(c fiber.Ctx, name string) (common.Address, error) {
	v := c.Params(name)
	if v == "" {
		return common.Address{}, NewAddressRequired(name)
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, NewInvalidAddress(name)
	}
	return common.HexToAddress(v), nil
}

func assetParam(c fiber.Ctx, name string) (asset.Asset, error) {
	a, err := asset.Parse(c.Params(name))
	if err != nil {
		return asset.Asset{}, NewInvalidAddress(name)
	}
	return a, nil
}

func parseAsset(field, s string) (asset.Asset, error) {
	a, err := asset.Parse(s)
	if err != nil {
		return asset.Asset{}, NewInvalidAddress(field)
	}
	return a, nil
}

// parseAmount reads a non-negative 256-bit amount. Empty means zero.
func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return fixedpoint.Zero(), nil
	}
	v, err := fixedpoint.Parse(s)
	if err != nil {
		return nil, NewInvalidAmount(field, err)
	}
	return v, nil
}

// deadline converts a unix timestamp into a deadline, defaulting to
// DefaultDeadline from now.
func deadline(now time.Time, unix *int64) time.Time {
	if unix == nil {
		return now.Add(DefaultDeadline)
	}
	return time.Unix(*unix, 0)
}
