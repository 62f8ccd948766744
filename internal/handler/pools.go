package handler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/nulln0ne/cpamm/internal/service"
	"github.com/rs/zerolog"
)

// PoolHandler serves pool creation, trading and administration.
type PoolHandler struct {
	BaseHandler
	exchange *service.Exchange
}

func NewPoolHandler(logger zerolog.Logger, ex *service.Exchange) *PoolHandler {
	return &PoolHandler{
		BaseHandler: newBaseHandler(logger, "pool_handler"),
		exchange:    ex,
	}
}

func (h *PoolHandler) Register(r fiber.Router) {
	r.Get("/pools", h.List())
	r.Post("/pools", h.Create())
	r.Get("/pools/:pool", h.Get())
	r.Get("/pools/:pool/quote", h.Quote())
	r.Post("/pools/:pool/liquidity", h.AddLiquidity())
	r.Post("/pools/:pool/liquidity/remove", h.RemoveLiquidity())
	r.Post("/pools/:pool/swap", h.Swap())
	r.Put("/pools/:pool/fees", h.SetFees())
	r.Post("/pools/:pool/fees/withdraw", h.WithdrawFees())
	r.Get("/pools/:pool/events", h.Events())
}

type CreatePoolRequest struct {
	AssetA string `json:"asset_a" validate:"required"`
	AssetB string `json:"asset_b" validate:"required"`
}

type AddLiquidityRequest struct {
	Caller   string `json:"caller" validate:"required,eth_addr"`
	AmountA  string `json:"amount_a" validate:"required"`
	AmountB  string `json:"amount_b" validate:"required"`
	MinA     string `json:"min_a"`
	MinB     string `json:"min_b"`
	Deadline *int64 `json:"deadline"`
}

type RemoveLiquidityRequest struct {
	Caller   string `json:"caller" validate:"required,eth_addr"`
	Shares   string `json:"shares" validate:"required"`
	MinA     string `json:"min_a"`
	MinB     string `json:"min_b"`
	Deadline *int64 `json:"deadline"`
}

type SwapRequest struct {
	Caller       string `json:"caller" validate:"required,eth_addr"`
	TokenIn      string `json:"token_in" validate:"required"`
	AmountIn     string `json:"amount_in" validate:"required"`
	MinAmountOut string `json:"min_amount_out"`
	Deadline     *int64 `json:"deadline"`
}

type QuoteRequest struct {
	TokenIn  string `query:"token_in" validate:"required"`
	AmountIn string `query:"amount_in" validate:"required"`
}

type SetFeesRequest struct {
	Caller        string  `json:"caller" validate:"required,eth_addr"`
	TradingFeeBps *uint64 `json:"trading_fee_bps" validate:"omitempty,lte=10000"`
	DevFeeBps     *uint64 `json:"dev_fee_bps" validate:"omitempty,lte=10000"`
	FeeRecipient  *string `json:"fee_recipient" validate:"omitempty,eth_addr"`
}

type WithdrawFeesRequest struct {
	Caller string `json:"caller" validate:"required,eth_addr"`
	Asset  string `json:"asset" validate:"required"`
	Amount string `json:"amount" validate:"required"`
}

type EventsRequest struct {
	Limit int `query:"limit" validate:"omitempty,gte=1,lte=1000"`
}

func (h *PoolHandler) List() fiber.Handler {
	return func(c fiber.Ctx) error {
		pools, err := h.exchange.Pools(c.Context())
		if err != nil {
			return err
		}
		return c.JSON(pools)
	}
}

func (h *PoolHandler) Create() fiber.Handler {
	return func(c fiber.Ctx) error {
		var req CreatePoolRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		a, err := parseAsset("asset_a", req.AssetA)
		if err != nil {
			return err
		}
		b, err := parseAsset("asset_b", req.AssetB)
		if err != nil {
			return err
		}
		st, err := h.exchange.CreatePool(c.Context(), a, b)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(st)
	}
}

func (h *PoolHandler) Get() fiber.Handler {
	return func(c fiber.Ctx) error {
		addr, err := addressParam(c, "pool")
		if err != nil {
			return err
		}
		p, err := h.exchange.Pool(addr)
		if err != nil {
			return err
		}
		return c.JSON(p.Snapshot())
	}
}

func (h *PoolHandler) Quote() fiber.Handler {
	return func(c fiber.Ctx) error {
		addr, err := addressParam(c, "pool")
		if err != nil {
			return err
		}
		var req QuoteRequest
		if err := h.bindQuery(c, &req); err != nil {
			return err
		}
		tokenIn, err := parseAsset("token_in", req.TokenIn)
		if err != nil {
			return err
		}
		amountIn, err := parseAmount("amount_in", req.AmountIn)
		if err != nil {
			return err
		}
		q, err := h.exchange.Quote(addr, tokenIn, amountIn)
		if err != nil {
			return err
		}
		h.logger.Debug().Str("pool", addr.Hex()).Str("in", amountIn.Dec()).Str("out", q.AmountOut.Dec()).Msg("quote computed")
		return c.JSON(q)
	}
}

func (h *PoolHandler) AddLiquidity() fiber.Handler {
	return func(c fiber.Ctx) error {
		addr, err := addressParam(c, "pool")
		if err != nil {
			return err
		}
		var req AddLiquidityRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		amountA, err := parseAmount("amount_a", req.AmountA)
		if err != nil {
			return err
		}
		amountB, err := parseAmount("amount_b", req.AmountB)
		if err != nil {
			return err
		}
		minA, err := parseAmount("min_a", req.MinA)
		if err != nil {
			return err
		}
		minB, err := parseAmount("min_b", req.MinB)
		if err != nil {
			return err
		}
		dep, err := h.exchange.AddLiquidity(addr, common.HexToAddress(req.Caller), amountA, amountB, minA, minB, deadline(h.exchange.Now(), req.Deadline))
		if err != nil {
			return err
		}
		return c.JSON(dep)
	}
}

func (h *PoolHandler) RemoveLiquidity() fiber.Handler {
	return func(c fiber.Ctx) error {
		addr, err := addressParam(c, "pool")
		if err != nil {
			return err
		}
		var req RemoveLiquidityRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		shares, err := parseAmount("shares", req.Shares)
		if err != nil {
			return err
		}
		minA, err := parseAmount("min_a", req.MinA)
		if err != nil {
			return err
		}
		minB, err := parseAmount("min_b", req.MinB)
		if err != nil {
			return err
		}
		w, err := h.exchange.RemoveLiquidity(addr, common.HexToAddress(req.Caller), shares, minA, minB, deadline(h.exchange.Now(), req.Deadline))
		if err != nil {
			return err
		}
		return c.JSON(w)
	}
}

func (h *PoolHandler) Swap() fiber.Handler {
	return func(c fiber.Ctx) error {
		addr, err := addressParam(c, "pool")
		if err != nil {
			return err
		}
		var req SwapRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		tokenIn, err := parseAsset("token_in", req.TokenIn)
		if err != nil {
			return err
		}
		amountIn, err := parseAmount("amount_in", req.AmountIn)
		if err != nil {
			return err
		}
		minOut, err := parseAmount("min_amount_out", req.MinAmountOut)
		if err != nil {
			return err
		}
		res, err := h.exchange.Swap(addr, common.HexToAddress(req.Caller), tokenIn, amountIn, minOut, deadline(h.exchange.Now(), req.Deadline))
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

func (h *PoolHandler) SetFees() fiber.Handler {
	return func(c fiber.Ctx) error {
		addr, err := addressParam(c, "pool")
		if err != nil {
			return err
		}
		var req SetFeesRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		update := service.FeeUpdate{TradingFeeBps: req.TradingFeeBps, DevFeeBps: req.DevFeeBps}
		if req.FeeRecipient != nil {
			r := common.HexToAddress(*req.FeeRecipient)
			update.FeeRecipient = &r
		}
		st, err := h.exchange.SetFees(addr, common.HexToAddress(req.Caller), update)
		if err != nil {
			return err
		}
		return c.JSON(st)
	}
}

func (h *PoolHandler) WithdrawFees() fiber.Handler {
	return func(c fiber.Ctx) error {
		addr, err := addressParam(c, "pool")
		if err != nil {
			return err
		}
		var req WithdrawFeesRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		a, err := parseAsset("asset", req.Asset)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		if err := h.exchange.WithdrawFees(addr, common.HexToAddress(req.Caller), a, amount); err != nil {
			return err
		}
		p, err := h.exchange.Pool(addr)
		if err != nil {
			return err
		}
		return c.JSON(p.Snapshot())
	}
}

func (h *PoolHandler) Events() fiber.Handler {
	return func(c fiber.Ctx) error {
		addr, err := addressParam(c, "pool")
		if err != nil {
			return err
		}
		var req EventsRequest
		if err := h.bindQuery(c, &req); err != nil {
			return err
		}
		if req.Limit == 0 {
			req.Limit = 100
		}
		if _, err := h.exchange.Pool(addr); err != nil {
			return err
		}
		evs, err := h.exchange.Events(c.Context(), addr, req.Limit)
		if err != nil {
			return err
		}
		return c.JSON(evs)
	}
}
