package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
)

type createFlagRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	FlagType string `json:"flag_type" binding:"required"`
	Severity string `json:"severity" binding:"required"`
}

type reviewFlagRequest struct {
	Action string `json:"action" binding:"required"`
}

type flagResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	FlagType      string     `json:"flag_type"`
	Severity      string     `json:"severity"`
	Reviewed      bool       `json:"reviewed"`
	AutoGenerated bool       `json:"auto_generated"`
	ReviewAction  *string    `json:"review_action,omitempty"`
	ReviewedBy    *string    `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toFlagResponse(flag *frauddomain.FraudFlag) flagResponse {
	resp := flagResponse{
		ID:            flag.ID.String(),
		UserID:        flag.UserID.String(),
		FlagType:      string(flag.FlagType),
		Severity:      string(flag.Severity),
		Reviewed:      flag.Reviewed,
		AutoGenerated: flag.AutoGenerated,
		ReviewedAt:    flag.ReviewedAt,
		CreatedAt:     flag.CreatedAt,
	}
	if flag.ReviewAction != nil {
		action := string(*flag.ReviewAction)
		resp.ReviewAction = &action
	}
	if flag.ReviewedBy != nil {
		reviewer := flag.ReviewedBy.String()
		resp.ReviewedBy = &reviewer
	}
	return resp
}

func (s *Server) createFlag(c *gin.Context) {
	var req createFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	userID, ok := parseID(req.UserID)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := CurrentIdentity(c)
	flag, err := s.fraudSvc.CreateFlag(
		c.Request.Context(),
		userID,
		frauddomain.FlagType(req.FlagType),
		frauddomain.Severity(req.Severity),
		identity.UserID,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toFlagResponse(flag))
}

func (s *Server) reviewFlag(c *gin.Context) {
	flagID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req reviewFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := CurrentIdentity(c)
	flag, err := s.fraudSvc.ReviewFlag(c.Request.Context(), flagID, identity.UserID, frauddomain.ReviewAction(req.Action))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toFlagResponse(flag))
}
