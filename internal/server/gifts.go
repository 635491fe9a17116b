package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	giftdomain "github.com/minutepay/minutepay/internal/gift/domain"
)

type sendGiftRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
	GiftID     string `json:"gift_id" binding:"required"`
	Message    string `json:"message"`
}

func toGiftResponse(gift *giftdomain.Gift) gin.H {
	return gin.H{
		"id":     gift.ID.String(),
		"code":   gift.Code,
		"name":   gift.Name,
		"price":  gift.Price,
		"active": gift.Active,
	}
}

func (s *Server) listGifts(c *gin.Context) {
	gifts, err := s.giftSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items := make([]gin.H, 0, len(gifts))
	for _, gift := range gifts {
		items = append(items, toGiftResponse(gift))
	}
	c.JSON(http.StatusOK, gin.H{"gifts": items})
}

func (s *Server) sendGift(c *gin.Context) {
	var req sendGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	receiverID, ok := parseID(req.ReceiverID)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	giftID, ok := parseID(req.GiftID)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := CurrentIdentity(c)
	transfer, err := s.giftSvc.Send(c.Request.Context(), identity.UserID, receiverID, giftID, req.Message)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"gift":            toGiftResponse(transfer.Gift),
		"sender_entry":    toEntryResponse(&transfer.SenderEntry),
		"receiver_entry":  toEntryResponse(&transfer.ReceiverEntry),
		"receiver_amount": transfer.ReceiverAmount,
		"fee_amount":      transfer.FeeAmount,
	})
}
