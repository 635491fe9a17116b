package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	"github.com/minutepay/minutepay/pkg/db/pagination"
)

type amountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

type entryResponse struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Amount         int64     `json:"amount"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	RelatedEntryID *string   `json:"related_entry_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toEntryResponse(entry *ledgerdomain.LedgerEntry) entryResponse {
	resp := entryResponse{
		ID:        entry.ID.String(),
		AccountID: entry.AccountID.String(),
		Amount:    entry.Amount,
		Kind:      string(entry.Kind),
		Status:    string(entry.Status),
		CreatedAt: entry.CreatedAt,
	}
	if entry.RelatedEntryID != nil {
		related := entry.RelatedEntryID.String()
		resp.RelatedEntryID = &related
	}
	return resp
}

func (s *Server) createAccount(c *gin.Context) {
	identity := CurrentIdentity(c)
	account, err := s.ledgerSvc.CreateAccount(c.Request.Context(), identity.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"account_id": account.ID.String(),
		"user_id":    account.UserID.String(),
		"balance":    account.Balance,
	})
}

func (s *Server) deposit(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := CurrentIdentity(c)
	entry, err := s.walletSvc.Deposit(c.Request.Context(), identity.UserID, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEntryResponse(entry))
}

func (s *Server) withdraw(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := CurrentIdentity(c)
	entry, err := s.walletSvc.Withdraw(c.Request.Context(), identity.UserID, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEntryResponse(entry))
}

func (s *Server) balance(c *gin.Context) {
	identity := CurrentIdentity(c)
	balance, err := s.walletSvc.Balance(c.Request.Context(), identity.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": identity.UserID.String(),
		"balance": balance,
	})
}

func (s *Server) entries(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	filter := ledgerdomain.EntryFilter{
		Kind:       ledgerdomain.EntryKind(c.Query("kind")),
		Status:     ledgerdomain.EntryStatus(c.Query("status")),
		Pagination: page,
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.To = to
	}

	identity := CurrentIdentity(c)
	entries, pageInfo, err := s.walletSvc.Entries(c.Request.Context(), identity.UserID, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toEntryResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":   items,
		"page_info": pageInfo,
	})
}
