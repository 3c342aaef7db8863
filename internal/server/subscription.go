package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
)

type subscriptionResponse struct {
	Subscription *subscriptiondomain.Subscription `json:"subscription"`
	Limits       plandomain.PlanLimits            `json:"limits"`
}

// GetSubscription reports a null subscription with Free limits when nothing is active.
func (s *Server) GetSubscription(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	var (
		resp   subscriptionResponse
		planID *string
	)
	sub, err := s.subscriptionSvc.GetActive(ctx, userID)
	switch {
	case err == nil:
		resp.Subscription = &sub
		planID = &sub.PlanID
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
	default:
		AbortWithError(c, err)
		return
	}

	resp.Limits, err = s.planSvc.LimitsFor(ctx, planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	sub, err := s.subscriptionSvc.Cancel(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}
