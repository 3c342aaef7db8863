package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/mediavault/internal/payment/domain"
	"github.com/smallbiznis/mediavault/pkg/db/pagination"
)

// ListAdminPayments lists payments newest first. attention=true narrows the
// listing to payments whose activation failed.
func (s *Server) ListAdminPayments(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status    string `form:"status"`
		UserID    string `form:"user_id"`
		Attention string `form:"attention"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	attention, err := parseOptionalBool(query.Attention)
	if err != nil {
		AbortWithError(c, newValidationError("attention", "invalid_attention", "attention must be a boolean"))
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentsRequest{
		Status:         strings.TrimSpace(query.Status),
		NeedsAttention: attention != nil && *attention,
		UserID:         strings.TrimSpace(query.UserID),
		PageToken:      query.PageToken,
		PageSize:       int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ReactivatePayment(c *gin.Context) {
	actorID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	payment, err := s.webhookSvc.Reactivate(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}
