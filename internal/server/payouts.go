package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	payoutdomain "github.com/minutepay/minutepay/internal/payout/domain"
)

type paymentResponse struct {
	ID               string    `json:"id"`
	StreamerID       string    `json:"streamer_id"`
	Amount           int64     `json:"amount"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	DueDate          time.Time `json:"due_date"`
	Status           string    `json:"status"`
	PaymentReference *string   `json:"payment_reference,omitempty"`
	LastError        *string   `json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toPaymentResponse(payment *payoutdomain.ScheduledPayment) paymentResponse {
	return paymentResponse{
		ID:               payment.ID.String(),
		StreamerID:       payment.StreamerID.String(),
		Amount:           payment.Amount,
		PeriodStart:      payment.PeriodStart,
		PeriodEnd:        payment.PeriodEnd,
		DueDate:          payment.DueDate,
		Status:           string(payment.Status),
		PaymentReference: payment.PaymentReference,
		LastError:        payment.LastError,
		CreatedAt:        payment.CreatedAt,
	}
}

func (s *Server) listPayouts(c *gin.Context) {
	identity := CurrentIdentity(c)
	payments, err := s.payoutSvc.ListPayments(c.Request.Context(), identity.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items := make([]paymentResponse, 0, len(payments))
	for _, payment := range payments {
		items = append(items, toPaymentResponse(payment))
	}
	c.JSON(http.StatusOK, gin.H{"payments": items})
}

func (s *Server) runSweep(c *gin.Context) {
	result, err := s.payoutSvc.RunSweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"eligible": result.Eligible,
		"paid":     result.Paid,
		"failed":   result.Failed,
	})
}
