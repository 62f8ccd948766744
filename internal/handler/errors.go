package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/nulln0ne/cpamm/internal/chain"
	"github.com/nulln0ne/cpamm/internal/errs"
	"github.com/nulln0ne/cpamm/internal/service"
	"github.com/rs/zerolog"
)

// ErrInvalidQueryParameters indicates that the request query string could not
// be parsed into the expected structure.
var ErrInvalidQueryParameters = fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")

// ErrInvalidBody indicates that the request body is not the expected JSON.
var ErrInvalidBody = fiber.NewError(fiber.StatusBadRequest, "invalid request body")

// ErrSameAddresses is returned when src and dst addresses are identical.
var ErrSameAddresses = fiber.NewError(fiber.StatusBadRequest, "src and dst addresses cannot be the same")

// ErrAmountRequired is returned when the amount parameter is missing.
var ErrAmountRequired = fiber.NewError(fiber.StatusBadRequest, "amount is required")

// ErrInvalidAmountFormat is returned when the amount cannot be parsed as a
// base-10 integer.
var ErrInvalidAmountFormat = fiber.NewError(fiber.StatusBadRequest, "invalid amount format")

// ErrAmountNonPositive is returned when the amount is zero or negative.
var ErrAmountNonPositive = fiber.NewError(fiber.StatusBadRequest, "amount must be greater than zero")

// ErrPairMismatchBadRequest maps a pool that does not trade src/dst to a 400.
var ErrPairMismatchBadRequest = fiber.NewError(fiber.StatusBadRequest, "pool does not trade src/dst")

// ErrChainUnavailableNotFound is returned for a non-local pool when no node
// is configured.
var ErrChainUnavailableNotFound = fiber.NewError(fiber.StatusNotFound, "pool not found")

// ErrEstimationFailedInternal signals a generic server-side failure.
var ErrEstimationFailedInternal = fiber.NewError(fiber.StatusInternalServerError, "estimation failed")

// ErrNotMintableBadRequest is returned by the faucet for share tokens.
var ErrNotMintableBadRequest = fiber.NewError(fiber.StatusBadRequest, "token cannot be minted")

// NewInvalidAmount wraps an amount parsing error into a 400 Bad Request with
// a descriptive message.
func NewInvalidAmount(field string, err error) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+": "+err.Error())
}

// NewAddressRequired returns a 400 Bad Request for a missing address field.
func NewAddressRequired(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, field+" address is required")
}

// NewInvalidAddress returns a 400 Bad Request for an invalid address format.
func NewInvalidAddress(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+" address")
}

// NewValidationError returns a 400 Bad Request describing failed fields.
func NewValidationError(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
}

var kindStatus = map[errs.Kind]int{
	errs.KindValidation:   fiber.StatusBadRequest,
	errs.KindArithmetic:   fiber.StatusBadRequest,
	errs.KindUnauthorized: fiber.StatusForbidden,
	errs.KindState:        fiber.StatusConflict,
	errs.KindNotFound:     fiber.StatusNotFound,
	errs.KindConflict:     fiber.StatusConflict,
}

// NewErrorHandler renders fiber errors and registered error kinds as JSON.
// Anything else is logged and reported as a 500.
func NewErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		err = translate(err)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
		}

		kind, registered := errs.KindOf(err)
		status, ok := kindStatus[kind]
		if !ok || registered == nil {
			logger.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
		}
		return c.Status(status).JSON(ErrorResponse{
			Error:     err.Error(),
			Codespace: registered.Codespace(),
			Code:      registered.ABCICode(),
		})
	}
}

// translate maps plain sentinel errors from the service layer to HTTP
// errors. Registered kinds pass through unchanged.
func translate(err error) error {
	switch {
	case errors.Is(err, chain.ErrPairMismatch):
		return ErrPairMismatchBadRequest
	case errors.Is(err, service.ErrChainUnavailable):
		return ErrChainUnavailableNotFound
	case errors.Is(err, service.ErrNotMintable):
		return ErrNotMintableBadRequest
	}
	return err
}
