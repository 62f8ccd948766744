package handler

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/farm"
	"github.com/nulln0ne/cpamm/internal/service"
	"github.com/rs/zerolog"
)

// FarmHandler serves staking reward distributors.
type FarmHandler struct {
	BaseHandler
	exchange *service.Exchange
}

func NewFarmHandler(logger zerolog.Logger, ex *service.Exchange) *FarmHandler {
	return &FarmHandler{
		BaseHandler: newBaseHandler(logger, "farm_handler"),
		exchange:    ex,
	}
}

func (h *FarmHandler) Register(r fiber.Router) {
	r.Post("/farms", h.Create())
	r.Get("/farms/:farm", h.Get())
	r.Get("/farms/:farm/earned/:account", h.Earned())
	r.Post("/farms/:farm/stake", h.amountOp(func(d *farm.Distributor, caller common.Address, amt *uint256.Int) error {
		return d.Stake(caller, amt)
	}))
	r.Post("/farms/:farm/withdraw", h.amountOp(func(d *farm.Distributor, caller common.Address, amt *uint256.Int) error {
		return d.Withdraw(caller, amt)
	}))
	r.Post("/farms/:farm/claim", h.Claim())
	r.Post("/farms/:farm/exit", h.Exit())
	r.Post("/farms/:farm/fund", h.Fund())
	r.Post("/farms/:farm/pause", h.callerOp((*farm.Distributor).Pause))
	r.Post("/farms/:farm/unpause", h.callerOp((*farm.Distributor).Unpause))
}

type CreateFarmRequest struct {
	StakingAsset string `json:"staking_asset" validate:"required"`
	RewardAsset  string `json:"reward_asset" validate:"required"`
	Owner        string `json:"owner" validate:"required,eth_addr"`
}

type CallerRequest struct {
	Caller string `json:"caller" validate:"required,eth_addr"`
}

type AmountRequest struct {
	Caller string `json:"caller" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required"`
}

type FundRequest struct {
	Caller          string `json:"caller" validate:"required,eth_addr"`
	Amount          string `json:"amount" validate:"required"`
	DurationSeconds uint64 `json:"duration_seconds"`
}

// AccountResponse is a staker's position in a farm.
type AccountResponse struct {
	Account common.Address `json:"account"`
	Staked  *uint256.Int   `json:"staked"`
	Earned  *uint256.Int   `json:"earned"`
}

// ExitResponse reports what an exit paid out.
type ExitResponse struct {
	Withdrawn *uint256.Int `json:"withdrawn"`
	Reward    *uint256.Int `json:"reward"`
}

func (h *FarmHandler) distributor(c fiber.Ctx) (*farm.Distributor, error) {
	addr, err := addressParam(c, "farm")
	if err != nil {
		return nil, err
	}
	return h.exchange.Farm(addr)
}

func (h *FarmHandler) Create() fiber.Handler {
	return func(c fiber.Ctx) error {
		var req CreateFarmRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		staking, err := parseAsset("staking_asset", req.StakingAsset)
		if err != nil {
			return err
		}
		reward, err := parseAsset("reward_asset", req.RewardAsset)
		if err != nil {
			return err
		}
		st, err := h.exchange.CreateFarm(staking, reward, common.HexToAddress(req.Owner))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(st)
	}
}

func (h *FarmHandler) Get() fiber.Handler {
	return func(c fiber.Ctx) error {
		d, err := h.distributor(c)
		if err != nil {
			return err
		}
		return h.state(c, d)
	}
}

func (h *FarmHandler) state(c fiber.Ctx, d *farm.Distributor) error {
	st, err := d.Snapshot()
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (h *FarmHandler) Earned() fiber.Handler {
	return func(c fiber.Ctx) error {
		d, err := h.distributor(c)
		if err != nil {
			return err
		}
		account, err := addressParam(c, "account")
		if err != nil {
			return err
		}
		earned, err := d.Earned(account)
		if err != nil {
			return err
		}
		return c.JSON(AccountResponse{Account: account, Staked: d.StakedOf(account), Earned: earned})
	}
}

func (h *FarmHandler) amountOp(op func(*farm.Distributor, common.Address, *uint256.Int) error) fiber.Handler {
	return func(c fiber.Ctx) error {
		d, err := h.distributor(c)
		if err != nil {
			return err
		}
		var req AmountRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		caller := common.HexToAddress(req.Caller)
		if err := op(d, caller, amount); err != nil {
			return err
		}
		earned, err := d.Earned(caller)
		if err != nil {
			return err
		}
		return c.JSON(AccountResponse{Account: caller, Staked: d.StakedOf(caller), Earned: earned})
	}
}

func (h *FarmHandler) callerOp(op func(*farm.Distributor, common.Address) error) fiber.Handler {
	return func(c fiber.Ctx) error {
		d, err := h.distributor(c)
		if err != nil {
			return err
		}
		var req CallerRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		if err := op(d, common.HexToAddress(req.Caller)); err != nil {
			return err
		}
		return h.state(c, d)
	}
}

func (h *FarmHandler) Claim() fiber.Handler {
	return func(c fiber.Ctx) error {
		d, err := h.distributor(c)
		if err != nil {
			return err
		}
		var req CallerRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		reward, err := d.Claim(common.HexToAddress(req.Caller))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"reward": reward})
	}
}

func (h *FarmHandler) Exit() fiber.Handler {
	return func(c fiber.Ctx) error {
		d, err := h.distributor(c)
		if err != nil {
			return err
		}
		var req CallerRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		withdrawn, reward, err := d.Exit(common.HexToAddress(req.Caller))
		if err != nil {
			return err
		}
		return c.JSON(ExitResponse{Withdrawn: withdrawn, Reward: reward})
	}
}

func (h *FarmHandler) Fund() fiber.Handler {
	return func(c fiber.Ctx) error {
		d, err := h.distributor(c)
		if err != nil {
			return err
		}
		var req FundRequest
		if err := h.bindBody(c, &req); err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		duration := time.Duration(req.DurationSeconds) * time.Second
		if err := d.FundRewards(common.HexToAddress(req.Caller), amount, duration); err != nil {
			return err
		}
		return h.state(c, d)
	}
}
