package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/mediavault/internal/authorization"
	"github.com/smallbiznis/mediavault/internal/config"
	mediadomain "github.com/smallbiznis/mediavault/internal/media/domain"
	paymentdomain "github.com/smallbiznis/mediavault/internal/payment/domain"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	quotadomain "github.com/smallbiznis/mediavault/internal/quota/domain"
	"github.com/smallbiznis/mediavault/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/mediavault/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type fakeAuthz struct{}

func (fakeAuthz) Authorize(_ context.Context, _ string, role, object, _ string) error {
	if object == authorization.ObjectPayment && role == authorization.RoleMember {
		return authorization.ErrForbidden
	}
	return nil
}

type fakeQuota struct {
	decision quotadomain.Decision
}

func (f *fakeQuota) Authorize(_ context.Context, _ string, kind quotadomain.OperationKind, size int64) (quotadomain.Decision, error) {
	d := f.decision
	d.Kind = kind
	d.SizeBytes = size
	return d, nil
}

type fakeUsage struct {
	usagedomain.Service
	transformationsUsed int64
	uploads             []usagedomain.RecordUploadRequest
	deletions           []int64
}

func (f *fakeUsage) RecordUpload(_ context.Context, req usagedomain.RecordUploadRequest) (usagedomain.UsageTracking, error) {
	f.uploads = append(f.uploads, req)
	if req.TransformationsLimit >= 0 && req.Transformations > 0 &&
		f.transformationsUsed+req.Transformations > req.TransformationsLimit {
		return usagedomain.UsageTracking{}, usagedomain.ErrTransformationLimitExceeded
	}
	f.transformationsUsed += req.Transformations
	return usagedomain.UsageTracking{UserID: req.UserID, TransformationsUsed: f.transformationsUsed}, nil
}

func (f *fakeUsage) RecordDeletion(_ context.Context, userID string, sizeBytes int64) (usagedomain.UsageTracking, error) {
	f.deletions = append(f.deletions, sizeBytes)
	return usagedomain.UsageTracking{UserID: userID}, nil
}

type fakeMedia struct {
	reclaimed map[string]bool
}

func (f *fakeMedia) Reclaim(_ context.Context, _ string, mediaID string) (int64, error) {
	if f.reclaimed == nil {
		f.reclaimed = map[string]bool{}
	}
	if f.reclaimed[mediaID] {
		return 0, mediadomain.ErrAlreadyReclaimed
	}
	f.reclaimed[mediaID] = true
	return 4096, nil
}

func (f *fakeMedia) Release(_ context.Context, mediaID string) error {
	delete(f.reclaimed, mediaID)
	return nil
}

type fakeWebhook struct {
	ack paymentdomain.Ack
	err error
}

func (f *fakeWebhook) Handle(context.Context, []byte, string) (paymentdomain.Ack, error) {
	return f.ack, f.err
}

func (f *fakeWebhook) Reactivate(context.Context, string, string) (paymentdomain.Payment, error) {
	return paymentdomain.Payment{PlanID: "pro", Status: paymentdomain.PaymentStatusSuccess}, nil
}

type fakeSubscriptions struct {
	subscriptiondomain.Service
}

func (fakeSubscriptions) GetActive(context.Context, string) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
}

type fakePlans struct {
	plandomain.Service
}

func (fakePlans) LimitsFor(context.Context, *string) (plandomain.PlanLimits, error) {
	return plandomain.PlanLimits{PlanID: plandomain.FreePlanID, StorageLimitMB: 500, MaxUploadSizeMB: 10, TransformationsLimit: 100}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, string) (*ratelimit.RateLimitResult, error) {
	return &ratelimit.RateLimitResult{Allowed: false, Limit: 5, RetryAfter: 1500 * time.Millisecond}, nil
}

type testDeps struct {
	quota   *fakeQuota
	usage   *fakeUsage
	media   *fakeMedia
	webhook *fakeWebhook
	limiter ratelimit.Limiter
}

func newTestServer(t *testing.T, deps testDeps) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if deps.quota == nil {
		deps.quota = &fakeQuota{}
	}
	if deps.usage == nil {
		deps.usage = &fakeUsage{}
	}
	if deps.media == nil {
		deps.media = &fakeMedia{}
	}
	if deps.webhook == nil {
		deps.webhook = &fakeWebhook{}
	}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	return NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{Auth: config.AuthConfig{JWTSecret: testSecret, RolesClaim: "roles"}},
		Log:             zap.NewNop(),
		AuthzSvc:        fakeAuthz{},
		PlanSvc:         fakePlans{},
		UsageSvc:        deps.usage,
		MediaSvc:        deps.media,
		QuotaSvc:        deps.quota,
		SubscriptionSvc: fakeSubscriptions{},
		WebhookSvc:      deps.webhook,
		Limiter:         deps.limiter,
	})
}

func signToken(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"roles": roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Type
}

func TestAuthRequiredRejectsMissingAndForgedTokens(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := doRequest(s, http.MethodGet, "/usage/current", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	rec = doRequest(s, http.MethodGet, "/usage/current", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorType(t, rec))
}

func TestAuthRequiredRejectsExpiredToken(t *testing.T) {
	s := newTestServer(t, testDeps{})

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := doRequest(s, http.MethodGet, "/usage/current", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
		ack    paymentdomain.AckStatus
	}{
		{name: "processed", status: http.StatusOK, ack: paymentdomain.AckProcessed},
		{name: "bad signature", err: paymentdomain.ErrInvalidSignature, status: http.StatusUnauthorized, typ: "unauthorized"},
		{name: "activation failed", err: paymentdomain.ErrActivationFailed, status: http.StatusInternalServerError, typ: "activation_failed"},
		{name: "database down", err: errors.New("connection refused"), status: http.StatusOK, ack: paymentdomain.AckFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, testDeps{webhook: &fakeWebhook{
				ack: paymentdomain.Ack{Status: paymentdomain.AckProcessed, PaymentID: "pay_1"},
				err: tc.err,
			}})

			rec := doRequest(s, http.MethodPost, "/payment/webhook?hmac=abc", "", map[string]any{"type": "TRANSACTION"})
			assert.Equal(t, tc.status, rec.Code)
			if tc.typ != "" {
				assert.Equal(t, tc.typ, errorType(t, rec))
				return
			}
			var ack paymentdomain.Ack
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
			assert.Equal(t, tc.ack, ack.Status)
			assert.Equal(t, "pay_1", ack.PaymentID)
		})
	}
}

func TestUpdateUsageRejectsOversizedUpload(t *testing.T) {
	usage := &fakeUsage{}
	s := newTestServer(t, testDeps{
		usage: usage,
		quota: &fakeQuota{decision: quotadomain.Decision{
			Outcome: quotadomain.OutcomeReject,
			Reason:  quotadomain.ReasonFileTooLarge,
		}},
	})

	rec := doRequest(s, http.MethodPost, "/usage/update", signToken(t, "user-1"), map[string]any{
		"action":    "upload",
		"fileSize":  50 << 20,
		"mediaType": "image",
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "file_too_large", errorType(t, rec))
	assert.Empty(t, usage.uploads)
}

func TestUpdateUsageRejectsStorageOverflow(t *testing.T) {
	s := newTestServer(t, testDeps{quota: &fakeQuota{decision: quotadomain.Decision{
		Outcome: quotadomain.OutcomeReject,
		Reason:  quotadomain.ReasonStorageLimitExceeded,
	}}})

	rec := doRequest(s, http.MethodPost, "/usage/update", signToken(t, "user-1"), map[string]any{
		"action":   "upload",
		"fileSize": 1024,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "storage_limit_exceeded", errorType(t, rec))
}

func TestUpdateUsageVideoOvershootRecordsWithoutTransformations(t *testing.T) {
	usage := &fakeUsage{}
	s := newTestServer(t, testDeps{
		usage: usage,
		quota: &fakeQuota{decision: quotadomain.Decision{
			Outcome: quotadomain.OutcomeAllowWithWarning,
			Reason:  quotadomain.ReasonTransformationLimitExceeded,
		}},
	})

	rec := doRequest(s, http.MethodPost, "/usage/update", signToken(t, "user-1"), map[string]any{
		"action":          "upload",
		"fileSize":        4096,
		"mediaType":       "video/mp4",
		"transformations": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, usage.uploads, 1)
	assert.Equal(t, int64(0), usage.uploads[0].Transformations)

	var resp usageUpdateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"transformation_limit_exceeded"}, resp.Warnings)
}

func TestUpdateUsageClientTransformationsHonorPlanLimit(t *testing.T) {
	limits := plandomain.PlanLimits{PlanID: "free", StorageLimitMB: 500, MaxUploadSizeMB: 10, TransformationsLimit: 10}
	usage := &fakeUsage{transformationsUsed: 10}
	s := newTestServer(t, testDeps{
		usage: usage,
		quota: &fakeQuota{decision: quotadomain.Decision{Outcome: quotadomain.OutcomeAllow, Limits: limits}},
	})

	rec := doRequest(s, http.MethodPost, "/usage/update", signToken(t, "user-1"), map[string]any{
		"action":          "upload",
		"fileSize":        1024,
		"mediaType":       "image/png",
		"transformations": 500,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "transformation_limit_exceeded", errorType(t, rec))
	require.Len(t, usage.uploads, 1)
	assert.Equal(t, int64(500), usage.uploads[0].Transformations)
	assert.Equal(t, int64(10), usage.uploads[0].TransformationsLimit)
	assert.Equal(t, int64(10), usage.transformationsUsed)
}

func TestUpdateUsageClientCannotUnderReportTransformations(t *testing.T) {
	limits := plandomain.PlanLimits{PlanID: "pro", StorageLimitMB: 5000, MaxUploadSizeMB: 100, TransformationsLimit: 1000}
	usage := &fakeUsage{}
	s := newTestServer(t, testDeps{
		usage: usage,
		quota: &fakeQuota{decision: quotadomain.Decision{
			Outcome:             quotadomain.OutcomeAllow,
			Limits:              limits,
			TransformationUnits: 3,
		}},
	})

	rec := doRequest(s, http.MethodPost, "/usage/update", signToken(t, "user-1"), map[string]any{
		"action":          "upload",
		"fileSize":        4096,
		"mediaType":       "video/mp4",
		"transformations": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, usage.uploads, 1)
	assert.Equal(t, int64(3), usage.uploads[0].Transformations)
	assert.Equal(t, int64(3), usage.transformationsUsed)
}

func TestUpdateUsageDeleteByMediaReclaimsOnce(t *testing.T) {
	usage := &fakeUsage{}
	s := newTestServer(t, testDeps{usage: usage})
	body := map[string]any{"action": "delete", "mediaId": "m1"}

	rec := doRequest(s, http.MethodPost, "/usage/update", signToken(t, "user-1"), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(s, http.MethodPost, "/usage/update", signToken(t, "user-1"), body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorType(t, rec))
	assert.Equal(t, []int64{4096}, usage.deletions)
}

func TestUpdateUsageRejectsUnknownAction(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := doRequest(s, http.MethodPost, "/usage/update", signToken(t, "user-1"), map[string]any{
		"action": "rename",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(t, rec))
}

func TestRateLimitDeniedSetsRetryAfter(t *testing.T) {
	s := newTestServer(t, testDeps{limiter: denyLimiter{}})

	rec := doRequest(s, http.MethodPost, "/usage/update", signToken(t, "user-1"), map[string]any{
		"action":   "upload",
		"fileSize": 1,
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := doRequest(s, http.MethodPost, "/admin/payments/pay_1/reactivate", signToken(t, "user-1", "member"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(s, http.MethodPost, "/admin/payments/pay_1/reactivate", signToken(t, "admin-1", "member", "admin"), nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := doRequest(s, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, rec))
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 3, retryAfterSeconds(2*time.Second+time.Millisecond))
}
