package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	calldomain "github.com/minutepay/minutepay/internal/call/domain"
	chargebackdomain "github.com/minutepay/minutepay/internal/chargeback/domain"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
	giftdomain "github.com/minutepay/minutepay/internal/gift/domain"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	payoutdomain "github.com/minutepay/minutepay/internal/payout/domain"
	walletdomain "github.com/minutepay/minutepay/internal/wallet/domain"
	"github.com/minutepay/minutepay/pkg/db/pagination"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware maps domain sentinels onto the stable error
// envelope after the handler chain ran.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case errors.Is(err, ledgerdomain.ErrAccountBlocked):
		return http.StatusForbidden, errorPayload{Type: "account_blocked", Message: "account is blocked"}
	case errors.Is(err, ledgerdomain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, errorPayload{Type: "insufficient_funds", Message: "insufficient funds"}
	case errors.Is(err, ledgerdomain.ErrConcurrencyConflict):
		return http.StatusConflict, errorPayload{Type: "concurrency_conflict", Message: "please retry"}
	case errors.Is(err, calldomain.ErrInvalidState),
		errors.Is(err, chargebackdomain.ErrInvalidState),
		errors.Is(err, chargebackdomain.ErrDuplicateChargeback),
		errors.Is(err, frauddomain.ErrFlagReviewed),
		errors.Is(err, ledgerdomain.ErrEntryReversed):
		return http.StatusConflict, errorPayload{Type: "invalid_state", Message: "operation not allowed in current state"}
	case errors.Is(err, ledgerdomain.ErrAccountNotFound),
		errors.Is(err, ledgerdomain.ErrEntryNotFound),
		errors.Is(err, calldomain.ErrCallNotFound),
		errors.Is(err, giftdomain.ErrGiftNotFound),
		errors.Is(err, frauddomain.ErrFlagNotFound),
		errors.Is(err, chargebackdomain.ErrChargebackNotFound),
		errors.Is(err, payoutdomain.ErrPaymentNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case errors.Is(err, payoutdomain.ErrGateway):
		return http.StatusBadGateway, errorPayload{Type: "gateway_error", Message: "payout gateway failed"}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{Type: "validation", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidRequest,
		ledgerdomain.ErrInvalidAccount,
		ledgerdomain.ErrInvalidAmount,
		ledgerdomain.ErrInvalidKind,
		ledgerdomain.ErrInvalidUser,
		ledgerdomain.ErrUnbalancedPair,
		calldomain.ErrInvalidRate,
		calldomain.ErrInvalidParticipants,
		giftdomain.ErrInvalidParticipants,
		giftdomain.ErrInvalidGift,
		walletdomain.ErrInvalidAmount,
		frauddomain.ErrInvalidUser,
		frauddomain.ErrInvalidFlagType,
		frauddomain.ErrInvalidSeverity,
		frauddomain.ErrInvalidAction,
		chargebackdomain.ErrInvalidReason,
		chargebackdomain.ErrInvalidDecision,
		chargebackdomain.ErrInvalidAmount,
		pagination.ErrInvalidCursor,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
