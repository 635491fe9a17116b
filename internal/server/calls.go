package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	calldomain "github.com/minutepay/minutepay/internal/call/domain"
)

type createCallRequest struct {
	StreamerID    string `json:"streamer_id" binding:"required"`
	RatePerMinute int64  `json:"rate_per_minute" binding:"required"`
}

type callResponse struct {
	ID              string     `json:"id"`
	ViewerID        string     `json:"viewer_id"`
	StreamerID      string     `json:"streamer_id"`
	RatePerMinute   int64      `json:"rate_per_minute"`
	Status          string     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	TotalCost       int64      `json:"total_cost"`
	SettledAmount   int64      `json:"settled_amount"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toCallResponse(call *calldomain.Call) callResponse {
	return callResponse{
		ID:              call.ID.String(),
		ViewerID:        call.ViewerID.String(),
		StreamerID:      call.StreamerID.String(),
		RatePerMinute:   call.RatePerMinute,
		Status:          string(call.Status),
		StartedAt:       call.StartedAt,
		EndedAt:         call.EndedAt,
		DurationSeconds: call.DurationSeconds,
		TotalCost:       call.TotalCost,
		SettledAmount:   call.SettledAmount,
		CreatedAt:       call.CreatedAt,
	}
}

func (s *Server) createCall(c *gin.Context) {
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	streamerID, ok := parseID(req.StreamerID)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := CurrentIdentity(c)
	call, err := s.callSvc.Create(c.Request.Context(), identity.UserID, streamerID, req.RatePerMinute)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCallResponse(call))
}

// loadCallForParticipant fetches the call and rejects callers that are not a
// participant, unless they hold an operator or admin role.
func (s *Server) loadCallForParticipant(c *gin.Context) (*calldomain.Call, bool) {
	callID, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	call, err := s.callSvc.Get(c.Request.Context(), callID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}

	identity := CurrentIdentity(c)
	if identity.Role == RoleOperator || identity.Role == RoleAdmin {
		return call, true
	}
	if identity.UserID != call.ViewerID && identity.UserID != call.StreamerID {
		AbortWithError(c, ErrForbidden)
		return nil, false
	}
	return call, true
}

func (s *Server) startCall(c *gin.Context) {
	call, ok := s.loadCallForParticipant(c)
	if !ok {
		return
	}
	call, err := s.callSvc.Start(c.Request.Context(), call.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCallResponse(call))
}

func (s *Server) endCall(c *gin.Context) {
	call, ok := s.loadCallForParticipant(c)
	if !ok {
		return
	}
	settlement, err := s.callSvc.End(c.Request.Context(), call.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"call":    toCallResponse(settlement.Call),
		"partial": settlement.Partial,
	})
}

func (s *Server) cancelCall(c *gin.Context) {
	call, ok := s.loadCallForParticipant(c)
	if !ok {
		return
	}
	call, err := s.callSvc.Cancel(c.Request.Context(), call.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCallResponse(call))
}

func (s *Server) quoteCall(c *gin.Context) {
	call, ok := s.loadCallForParticipant(c)
	if !ok {
		return
	}
	quote, err := s.callSvc.Quote(c.Request.Context(), call.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"call_id":          call.ID.String(),
		"duration_seconds": quote.DurationSeconds,
		"billed_minutes":   quote.BilledMinutes,
		"total_cost":       quote.TotalCost,
	})
}

func (s *Server) getCall(c *gin.Context) {
	call, ok := s.loadCallForParticipant(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toCallResponse(call))
}
