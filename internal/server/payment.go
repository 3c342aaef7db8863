package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/mediavault/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/mediavault/internal/payment/domain"
	"go.uber.org/zap"
)

// maxWebhookBody bounds what a provider callback may send.
const maxWebhookBody = 1 << 20

type initiatePaymentRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

func (s *Server) InitiatePayment(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	result, err := s.paymentSvc.Initiate(c.Request.Context(), userID, strings.ToLower(strings.TrimSpace(req.PlanID)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) GetPayment(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	payment, err := s.paymentSvc.GetForUser(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) GetPaymentReceipt(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	paymentID := strings.TrimSpace(c.Param("id"))
	receipt, err := s.paymentSvc.Receipt(c.Request.Context(), userID, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="receipt-`+paymentID+`.pdf"`)
	c.DataFromReader(http.StatusOK, -1, "application/pdf", receipt, nil)
}

// HandlePaymentWebhook acknowledges every delivery with 200 except a bad
// signature (401) and an activation failure after a confirmed payment (500),
// which the provider retries. Other internal failures are logged and acked
// with status "error".
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	ack, err := s.webhookSvc.Handle(ctx, payload, webhookSignature(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, ack)
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		AbortWithError(c, err)
	case errors.Is(err, paymentdomain.ErrActivationFailed):
		logger.FromContext(ctx).Error("webhook activation failed", zap.String("payment_id", ack.PaymentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: errorPayload{
			Type:    "activation_failed",
			Message: "payment recorded, activation pending",
		}})
	default:
		logger.FromContext(ctx).Error("webhook processing failed", zap.String("payment_id", ack.PaymentID), zap.Error(err))
		c.JSON(http.StatusOK, paymentdomain.Ack{Status: paymentdomain.AckFailed, PaymentID: ack.PaymentID})
	}
}

// webhookSignature reads the HMAC from the X-HMAC header, an hmac header, or the
// hmac query parameter, in that order.
func webhookSignature(c *gin.Context) string {
	if sig := strings.TrimSpace(c.GetHeader("X-HMAC")); sig != "" {
		return sig
	}
	if sig := strings.TrimSpace(c.GetHeader("hmac")); sig != "" {
		return sig
	}
	return strings.TrimSpace(c.Query("hmac"))
}
