package handler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/service"
	"github.com/rs/zerolog"
)

// TokenHandler exposes the in-memory token ledgers.
type TokenHandler struct {
	BaseHandler
	exchange *service.Exchange
}

func NewTokenHandler(logger zerolog.Logger, ex *service.Exchange) *TokenHandler {
	return &TokenHandler{
		BaseHandler: newBaseHandler(logger, "token_handler"),
		exchange:    ex,
	}
}

func (h *TokenHandler) Register(r fiber.Router) {
	r.Post("/tokens", h.Create())
	r.Get("/tokens/:token/balance/:owner", h.Balance())
	r.Post("/tokens/:token/approve", h.Approve())
	r.Post("/tokens/:token/transfer", h.Transfer())
	r.Post("/tokens/:token/mint", h.Mint())
}

type RegisterTokenRequest struct {
	Address  string `json:"address" validate:"required,eth_addr"`
	Symbol   string `json:"symbol" validate:"required,max=32"`
	Decimals uint8  `json:"decimals" validate:"lte=18"`
}

// TokenResponse describes a registered token.
type TokenResponse struct {
	Token       asset.Asset  `json:"token"`
	Symbol      string       `json:"symbol"`
	Decimals    uint8        `json:"decimals"`
	TotalSupply *uint256.Int `json:"total_supply"`
}

type ApproveRequest struct {
	Owner   string `json:"owner" validate:"required,eth_addr"`
	Spender string `json:"spender" validate:"required,eth_addr"`
	Amount  string `json:"amount" validate:"required"`
}

type TransferRequest struct {
	From   string `json:"from" validate:"required,eth_addr"`
	To     string `json:"to" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required"`
}

type MintRequest struct {
	To     string `json:"to" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required"`
}

// BalanceResponse is an account's holding of one token.
type BalanceResponse struct {
	Token    asset.Asset    `json:"token"`
	Owner    common.Address `json:"owner"`
	Symbol   string         `json:"symbol"`
	Balance  *uint256.Int   `json:"balance"`
	Display  string         `json:"display"`
	Decimals uint8          `json:"decimals"`
}

func (h *TokenHandler) balance(c fiber.Ctx, a asset.Asset, owner common.Address) error {
	t, err := h.exchange.Bank().Token(a)
	if err != nil {
		return err
	}
	bal := t.BalanceOf(owner)
	return c.JSON(BalanceResponse{
		Token:    a,
		Owner:    owner,
		Symbol:   t.Symbol(),
		Balance:  bal,
		Display:  asset.FormatUnits(bal, t.Decimals()),
		Decimals: t.Decimals(),
	})
}

// Create registers a fungible token so pools can be opened against it.
func (h *TokenHandler) Create() fiber.Handler {
	return func(c fiber.Ctx) error {
		var req RegisterTokenRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		addr := common.HexToAddress(req.Address)
		if addr == (common.Address{}) {
			return NewInvalidAddress("token")
		}
		t, err := h.exchange.RegisterToken(addr, req.Symbol, req.Decimals)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(TokenResponse{
			Token:       asset.FungibleAsset(addr),
			Symbol:      t.Symbol(),
			Decimals:    t.Decimals(),
			TotalSupply: t.TotalSupply(),
		})
	}
}

func (h *TokenHandler) Balance() fiber.Handler {
	return func(c fiber.Ctx) error {
		a, err := assetParam(c, "token")
		if err != nil {
			return err
		}
		owner, err := addressParam(c, "owner")
		if err != nil {
			return err
		}
		return h.balance(c, a, owner)
	}
}

func (h *TokenHandler) Approve() fiber.Handler {
	return func(c fiber.Ctx) error {
		a, err := assetParam(c, "token")
		if err != nil {
			return err
		}
		var req ApproveRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		owner, spender := common.HexToAddress(req.Owner), common.HexToAddress(req.Spender)
		allowance, err := h.exchange.Approve(a, owner, spender, amount)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"owner": owner, "spender": spender, "allowance": allowance})
	}
}

func (h *TokenHandler) Transfer() fiber.Handler {
	return func(c fiber.Ctx) error {
		a, err := assetParam(c, "token")
		if err != nil {
			return err
		}
		var req TransferRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		from := common.HexToAddress(req.From)
		if err := h.exchange.Transfer(a, from, common.HexToAddress(req.To), amount); err != nil {
			return err
		}
		return h.balance(c, a, from)
	}
}

func (h *TokenHandler) Mint() fiber.Handler {
	return func(c fiber.Ctx) error {
		a, err := assetParam(c, "token")
		if err != nil {
			return err
		}
		var req MintRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		to := common.HexToAddress(req.To)
		if err := h.exchange.Mint(a, to, amount); err != nil {
			return err
		}
		return h.balance(c, a, to)
	}
}
