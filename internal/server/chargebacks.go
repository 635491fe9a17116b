package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	chargebackdomain "github.com/minutepay/minutepay/internal/chargeback/domain"
)

type fileChargebackRequest struct {
	EntryID string `json:"entry_id" binding:"required"`
	Reason  string `json:"reason" binding:"required"`
}

type decideChargebackRequest struct {
	Decision string `json:"decision" binding:"required"`
	Amount   int64  `json:"amount"`
	Notes    string `json:"notes"`
}

type chargebackResponse struct {
	ID            string     `json:"id"`
	EntryID       string     `json:"entry_id"`
	UserID        string     `json:"user_id"`
	Amount        int64      `json:"amount"`
	Reason        string     `json:"reason"`
	Status        string     `json:"status"`
	AdminDecision *string    `json:"admin_decision,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toChargebackResponse(cb *chargebackdomain.Chargeback) chargebackResponse {
	resp := chargebackResponse{
		ID:         cb.ID.String(),
		EntryID:    cb.EntryID.String(),
		UserID:     cb.UserID.String(),
		Amount:     cb.Amount,
		Reason:     cb.Reason,
		Status:     string(cb.Status),
		Notes:      cb.Notes,
		ResolvedAt: cb.ResolvedAt,
		CreatedAt:  cb.CreatedAt,
	}
	if cb.AdminDecision != nil {
		decision := string(*cb.AdminDecision)
		resp.AdminDecision = &decision
	}
	return resp
}

func (s *Server) fileChargeback(c *gin.Context) {
	var req fileChargebackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	entryID, ok := parseID(req.EntryID)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := CurrentIdentity(c)
	if identity.Role == RoleUser {
		entry, err := s.ledgerSvc.GetEntry(c.Request.Context(), entryID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		account, err := s.ledgerSvc.GetAccount(c.Request.Context(), entry.AccountID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if account.UserID != identity.UserID {
			AbortWithError(c, ErrForbidden)
			return
		}
	}

	cb, err := s.chargebackSvc.File(c.Request.Context(), entryID, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toChargebackResponse(cb))
}

func (s *Server) decideChargeback(c *gin.Context) {
	chargebackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req decideChargebackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := CurrentIdentity(c)
	cb, err := s.chargebackSvc.Decide(
		c.Request.Context(),
		chargebackID,
		chargebackdomain.Decision(req.Decision),
		req.Amount,
		identity.UserID,
		req.Notes,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toChargebackResponse(cb))
}
