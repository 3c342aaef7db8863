package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/mediavault/internal/observability/logger"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	quotadomain "github.com/smallbiznis/mediavault/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/mediavault/internal/usage/domain"
	"go.uber.org/zap"
)

const (
	usageActionUpload = "upload"
	usageActionDelete = "delete"
)

type updateUsageRequest struct {
	Action          string `json:"action" binding:"required,oneof=upload delete"`
	MediaID         string `json:"mediaId"`
	FileSize        *int64 `json:"fileSize" binding:"omitempty,gte=0"`
	Transformations *int64 `json:"transformations" binding:"omitempty,gte=0"`
	MediaType       string `json:"mediaType"`
}

type authorizeUsageRequest struct {
	FileSize  int64  `json:"fileSize" binding:"gte=0"`
	MediaType string `json:"mediaType"`
	Operation string `json:"operation"`
}

type usageUpdateResponse struct {
	Action   string                `json:"action"`
	Usage    usagedomain.Snapshot  `json:"usage"`
	Limits   plandomain.PlanLimits `json:"limits"`
	Warnings []string              `json:"warnings,omitempty"`
}

func (s *Server) UpdateUsage(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	c.Set("usage_action", req.Action)

	ctx := c.Request.Context()
	var (
		resp usageUpdateResponse
		err  error
	)
	switch req.Action {
	case usageActionUpload:
		resp, err = s.recordUpload(ctx, userID, req)
	case usageActionDelete:
		resp, err = s.recordDeletion(ctx, userID, req)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordUsageUpdate(ctx, req.Action)

	c.JSON(http.StatusOK, resp)
}

// recordUpload gates the upload first. A transformation overshoot on video is
// allowed through as a raw upload that consumes no transformations.
func (s *Server) recordUpload(ctx context.Context, userID string, req updateUsageRequest) (usageUpdateResponse, error) {
	if req.FileSize == nil {
		return usageUpdateResponse{}, newValidationError("fileSize", "required", "is required")
	}
	kind, err := quotadomain.KindForMediaType(req.MediaType)
	if err != nil {
		return usageUpdateResponse{}, newValidationError("mediaType", "invalid_media_type", "must be image or video")
	}

	decision, err := s.quotaSvc.Authorize(ctx, userID, kind, *req.FileSize)
	if err != nil {
		return usageUpdateResponse{}, err
	}
	if !decision.Allowed() {
		return usageUpdateResponse{}, decision.Err()
	}

	// The client may claim more units than the decision priced, never fewer.
	// The ledger guard re-checks the larger figure against the plan limit.
	transformations := decision.TransformationUnits
	if decision.Outcome == quotadomain.OutcomeAllow && req.Transformations != nil && *req.Transformations > transformations {
		transformations = *req.Transformations
	}

	row, err := s.usageSvc.RecordUpload(ctx, usagedomain.RecordUploadRequest{
		UserID:               userID,
		SizeBytes:            *req.FileSize,
		Transformations:      transformations,
		StorageLimitBytes:    decision.Limits.StorageLimitBytes(),
		TransformationsLimit: decision.Limits.TransformationsLimit,
	})
	if err != nil {
		return usageUpdateResponse{}, err
	}

	resp := usageUpdateResponse{
		Action: usageActionUpload,
		Usage:  usagedomain.NewSnapshot(row, decision.Limits),
		Limits: decision.Limits,
	}
	if decision.Outcome == quotadomain.OutcomeAllowWithWarning {
		resp.Warnings = append(resp.Warnings, string(decision.Reason))
	}
	return resp, nil
}

// recordDeletion takes the size from the owned media row when mediaId is given,
// else from fileSize. A media row is reclaimed at most once.
func (s *Server) recordDeletion(ctx context.Context, userID string, req updateUsageRequest) (usageUpdateResponse, error) {
	mediaID := strings.TrimSpace(req.MediaID)
	if mediaID == "" && req.FileSize == nil {
		return usageUpdateResponse{}, newValidationError("fileSize", "required", "fileSize or mediaId is required")
	}

	limits, err := s.limitsFor(ctx, userID)
	if err != nil {
		return usageUpdateResponse{}, err
	}

	var size int64
	if mediaID != "" {
		size, err = s.mediaSvc.Reclaim(ctx, userID, mediaID)
		if err != nil {
			return usageUpdateResponse{}, err
		}
	} else {
		size = *req.FileSize
	}

	row, err := s.usageSvc.RecordDeletion(ctx, userID, size)
	if err != nil {
		if mediaID != "" {
			if releaseErr := s.mediaSvc.Release(ctx, mediaID); releaseErr != nil {
				logger.FromContext(ctx).Error("release media reclaim", zap.String("media_id", mediaID), zap.Error(releaseErr))
			}
		}
		return usageUpdateResponse{}, err
	}
	return usageUpdateResponse{
		Action: usageActionDelete,
		Usage:  usagedomain.NewSnapshot(row, limits),
		Limits: limits,
	}, nil
}

// AuthorizeUsage is a read-only pre-flight check. Rejections come back as a
// decision with 200 so clients can render the reason.
func (s *Server) AuthorizeUsage(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req authorizeUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	kind := quotadomain.OperationKind(strings.TrimSpace(req.Operation))
	if kind == "" {
		var err error
		kind, err = quotadomain.KindForMediaType(req.MediaType)
		if err != nil {
			AbortWithError(c, newValidationError("mediaType", "invalid_media_type", "must be image or video"))
			return
		}
	}
	if !kind.Valid() {
		AbortWithError(c, newValidationError("operation", "invalid_operation", "invalid operation"))
		return
	}

	decision, err := s.quotaSvc.Authorize(c.Request.Context(), userID, kind, req.FileSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (s *Server) GetCurrentUsage(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	limits, err := s.limitsFor(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	row, err := s.usageSvc.Peek(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, usagedomain.NewSnapshot(row, limits))
}

func (s *Server) GetUsageAnalytics(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	months := usagedomain.DefaultAnalyticsMonths
	if raw := strings.TrimSpace(c.Query("months")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > usagedomain.MaxAnalyticsMonths {
			AbortWithError(c, newValidationError("months", "invalid_months", "months must be between 1 and "+strconv.Itoa(usagedomain.MaxAnalyticsMonths)))
			return
		}
		months = parsed
	}

	analytics, err := s.usageSvc.Analytics(c.Request.Context(), userID, months)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// limitsFor resolves the user's plan limits, falling back to Free without an
// active subscription.
func (s *Server) limitsFor(ctx context.Context, userID string) (plandomain.PlanLimits, error) {
	var planID *string
	sub, err := s.subscriptionSvc.GetActive(ctx, userID)
	switch {
	case err == nil:
		planID = &sub.PlanID
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
	default:
		return plandomain.PlanLimits{}, err
	}
	return s.planSvc.LimitsFor(ctx, planID)
}
