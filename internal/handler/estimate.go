package handler

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/service"
	"github.com/rs/zerolog"
)

type EstimateHandler struct {
	BaseHandler
	service *service.EstimateService
}

func NewEstimateHandler(logger zerolog.Logger, svc *service.EstimateService) *EstimateHandler {
	return &EstimateHandler{
		BaseHandler: newBaseHandler(logger, "estimate_handler"),
		service:     svc,
	}
}

// EstimateRequest selects a pool explicitly or, when Pool is empty, by its
// token pair.
type EstimateRequest struct {
	Pool     string `query:"pool" json:"pool"`
	Src      string `query:"src" json:"src"`
	Dst      string `query:"dst" json:"dst"`
	AmountIn string `query:"src_amount" json:"amount_in"`
}

func (h *EstimateHandler) Handle() fiber.Handler {
	return func(c fiber.Ctx) error {
		req, err := h.parseAndValidateRequest(c)
		if err != nil {
			return err
		}

		src := common.HexToAddress(req.Src)
		dst := common.HexToAddress(req.Dst)

		amountIn, err := h.parseAmount(req.AmountIn)
		if err != nil {
			return err
		}

		var pool common.Address
		if req.Pool != "" {
			pool = common.HexToAddress(req.Pool)
		} else if pool, err = h.service.ResolvePool(c.Context(), src, dst); err != nil {
			return h.handleServiceError(err)
		}

		amountOut, err := h.service.Estimate(c.Context(), pool, src, dst, amountIn)
		if err != nil {
			return h.handleServiceError(err)
		}

		h.logger.Debug().Str("pool", pool.Hex()).Str("src", req.Src).Str("dst", req.Dst).Str("in", amountIn.String()).Str("out", amountOut.String()).Msg("estimate computed")
		return c.SendString(amountOut.String())
	}
}

func (h *EstimateHandler) parseAndValidateRequest(c fiber.Ctx) (*EstimateRequest, error) {
	var req EstimateRequest

	if err := c.Bind().Query(&req); err != nil {
		h.logger.Debug().Err(err).Msg("failed to bind query parameters")
		return nil, ErrInvalidQueryParameters
	}

	if err := h.validateAddresses(&req); err != nil {
		return nil, err
	}

	return &req, nil
}

func (h *EstimateHandler) validateAddresses(req *EstimateRequest) error {
	addresses := map[string]string{
		"src": req.Src,
		"dst": req.Dst,
	}
	if req.Pool != "" {
		addresses["pool"] = req.Pool
	}

	for field, addr := range addresses {
		if addr == "" {
			return NewAddressRequired(field)
		}
		if !common.IsHexAddress(addr) {
			return NewInvalidAddress(field)
		}
	}

	if common.HexToAddress(req.Src) == common.HexToAddress(req.Dst) {
		return ErrSameAddresses
	}

	return nil
}

func (h *EstimateHandler) parseAmount(amountStr string) (*big.Int, error) {
	if amountStr == "" {
		return nil, ErrAmountRequired
	}

	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return nil, ErrInvalidAmountFormat
	}

	if amount.Sign() <= 0 {
		return nil, ErrAmountNonPositive
	}

	return amount, nil
}

// handleServiceError passes known failures on to the error handler and
// hides anything else behind a generic estimation failure.
func (h *EstimateHandler) handleServiceError(err error) error {
	if kind, _ := errs.KindOf(err); kind != errs.KindInternal {
		return err
	}
	switch {
	case errors.Is(err, service.ErrPairMismatch), errors.Is(err, service.ErrChainUnavailable):
		return err
	default:
		h.logger.Error().Err(err).Msg("service estimate failed")
		return ErrEstimationFailedInternal
	}
}
