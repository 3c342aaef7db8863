package service

import (
	"context"
	"errors"
	"testing"

	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	"github.com/smallbiznis/mediavault/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/mediavault/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const mb = plandomain.BytesPerMB

// -- Mocks --

type planMock struct {
	mock.Mock
}

func (m *planMock) LimitsFor(ctx context.Context, planID *string) (plandomain.PlanLimits, error) {
	var id string
	if planID != nil {
		id = *planID
	}
	args := m.Called(ctx, id)
	return args.Get(0).(plandomain.PlanLimits), args.Error(1)
}
func (m *planMock) Get(context.Context, string) (plandomain.Plan, error) { return plandomain.Plan{}, nil }
func (m *planMock) List(context.Context) ([]plandomain.Plan, error)      { return nil, nil }
func (m *planMock) Free(context.Context) (plandomain.Plan, error)        { return plandomain.Plan{}, nil }
func (m *planMock) Invalidate()                                          {}

type subscriptionMock struct {
	mock.Mock
}

func (m *subscriptionMock) GetActive(ctx context.Context, userID string) (subscriptiondomain.Subscription, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(subscriptiondomain.Subscription), args.Error(1)
}
func (m *subscriptionMock) Activate(context.Context, string, string) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}
func (m *subscriptionMock) Cancel(context.Context, string) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}
func (m *subscriptionMock) ExpireDue(context.Context, int) (int, error) { return 0, nil }

type usageMock struct {
	mock.Mock
}

func (m *usageMock) Peek(ctx context.Context, userID string) (usagedomain.UsageTracking, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(usagedomain.UsageTracking), args.Error(1)
}
func (m *usageMock) CurrentPeriod(context.Context, string) (usagedomain.UsageTracking, error) {
	return usagedomain.UsageTracking{}, nil
}
func (m *usageMock) RecordUpload(context.Context, usagedomain.RecordUploadRequest) (usagedomain.UsageTracking, error) {
	return usagedomain.UsageTracking{}, nil
}
func (m *usageMock) RecordDeletion(context.Context, string, int64) (usagedomain.UsageTracking, error) {
	return usagedomain.UsageTracking{}, nil
}
func (m *usageMock) Analytics(context.Context, string, int) (usagedomain.Analytics, error) {
	return usagedomain.Analytics{}, nil
}

var freeLimits = plandomain.PlanLimits{
	PlanID:               "free",
	StorageLimitMB:       500,
	MaxUploadSizeMB:      10,
	TransformationsLimit: 25,
	TeamMembers:          1,
}

func newService(plans *planMock, subs *subscriptionMock, usage *usageMock) domain.Service {
	return NewService(Params{Log: zap.NewNop(), Plans: plans, Subs: subs, Usage: usage})
}

func freeUser(used usagedomain.UsageTracking) (*planMock, *subscriptionMock, *usageMock) {
	plans := new(planMock)
	subs := new(subscriptionMock)
	usage := new(usageMock)
	subs.On("GetActive", mock.Anything, "u1").Return(subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound)
	plans.On("LimitsFor", mock.Anything, "").Return(freeLimits, nil)
	usage.On("Peek", mock.Anything, "u1").Return(used, nil)
	return plans, subs, usage
}

func TestAuthorizeNoDataUsesFreeLimits(t *testing.T) {
	plans, subs, usage := freeUser(usagedomain.UsageTracking{})
	svc := newService(plans, subs, usage)

	decision, err := svc.Authorize(context.Background(), "u1", domain.OperationImageUpload, 5*mb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, decision.Outcome)
	assert.Equal(t, "free", decision.Limits.PlanID)
	plans.AssertExpectations(t)
}

func TestAuthorizeStorageBoundary(t *testing.T) {
	plans, subs, usage := freeUser(usagedomain.UsageTracking{StorageUsed: 499 * mb})
	svc := newService(plans, subs, usage)

	decision, err := svc.Authorize(context.Background(), "u1", domain.OperationImageUpload, 2*mb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReject, decision.Outcome)
	assert.Equal(t, domain.ReasonStorageLimitExceeded, decision.Reason)
	assert.ErrorIs(t, decision.Err(), usagedomain.ErrStorageLimitExceeded)

	decision, err = svc.Authorize(context.Background(), "u1", domain.OperationImageUpload, 1*mb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, decision.Outcome)
	assert.NoError(t, decision.Err())
}

func TestAuthorizeFileTooLarge(t *testing.T) {
	plans, subs, usage := freeUser(usagedomain.UsageTracking{})
	svc := newService(plans, subs, usage)

	decision, err := svc.Authorize(context.Background(), "u1", domain.OperationVideoUpload, 10*mb+1)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReject, decision.Outcome)
	assert.Equal(t, domain.ReasonFileTooLarge, decision.Reason)
	assert.ErrorIs(t, decision.Err(), domain.ErrFileTooLarge)
	usage.AssertNotCalled(t, "Peek", mock.Anything, mock.Anything)
}

func TestAuthorizeVideoTransformationSoftLimit(t *testing.T) {
	plans, subs, usage := freeUser(usagedomain.UsageTracking{TransformationsUsed: 23})
	svc := newService(plans, subs, usage)

	decision, err := svc.Authorize(context.Background(), "u1", domain.OperationVideoUpload, mb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllowWithWarning, decision.Outcome)
	assert.Equal(t, domain.ReasonTransformationLimitExceeded, decision.Reason)
	assert.Zero(t, decision.TransformationUnits)
	assert.True(t, decision.Allowed())
}

func TestAuthorizeImageIgnoresExhaustedTransformations(t *testing.T) {
	plans, subs, usage := freeUser(usagedomain.UsageTracking{TransformationsUsed: 25})
	svc := newService(plans, subs, usage)

	decision, err := svc.Authorize(context.Background(), "u1", domain.OperationImageUpload, mb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, decision.Outcome)
	assert.Equal(t, domain.ReasonNone, decision.Reason)
}

func TestAuthorizeVideoWithinTransformationLimit(t *testing.T) {
	plans, subs, usage := freeUser(usagedomain.UsageTracking{TransformationsUsed: 22})
	svc := newService(plans, subs, usage)

	decision, err := svc.Authorize(context.Background(), "u1", domain.OperationVideoUpload, mb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, decision.Outcome)
	assert.Equal(t, int64(3), decision.TransformationUnits)
}

func TestAuthorizeTransformIsHardRejected(t *testing.T) {
	plans, subs, usage := freeUser(usagedomain.UsageTracking{TransformationsUsed: 25})
	svc := newService(plans, subs, usage)

	decision, err := svc.Authorize(context.Background(), "u1", domain.OperationTransform, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReject, decision.Outcome)
	assert.ErrorIs(t, decision.Err(), domain.ErrTransformationLimitExceeded)
}

func TestAuthorizeUsesActiveSubscriptionPlan(t *testing.T) {
	plans := new(planMock)
	subs := new(subscriptionMock)
	usage := new(usageMock)
	subs.On("GetActive", mock.Anything, "u1").Return(subscriptiondomain.Subscription{PlanID: "business"}, nil)
	plans.On("LimitsFor", mock.Anything, "business").Return(plandomain.PlanLimits{
		PlanID:               "business",
		StorageLimitMB:       plandomain.Unlimited,
		MaxUploadSizeMB:      500,
		TransformationsLimit: plandomain.Unlimited,
	}, nil)
	usage.On("Peek", mock.Anything, "u1").Return(usagedomain.UsageTracking{StorageUsed: 1 << 50, TransformationsUsed: 1 << 30}, nil)
	svc := newService(plans, subs, usage)

	decision, err := svc.Authorize(context.Background(), "u1", domain.OperationVideoUpload, 400*mb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, decision.Outcome)
	assert.Equal(t, int64(3), decision.TransformationUnits)
	plans.AssertExpectations(t)
}

func TestAuthorizePropagatesLookupErrors(t *testing.T) {
	plans := new(planMock)
	subs := new(subscriptionMock)
	usage := new(usageMock)
	boom := errors.New("db down")
	subs.On("GetActive", mock.Anything, "u1").Return(subscriptiondomain.Subscription{}, boom)
	svc := newService(plans, subs, usage)

	_, err := svc.Authorize(context.Background(), "u1", domain.OperationImageUpload, mb)
	require.ErrorIs(t, err, boom)
}

func TestAuthorizeValidation(t *testing.T) {
	svc := newService(new(planMock), new(subscriptionMock), new(usageMock))

	_, err := svc.Authorize(context.Background(), "", domain.OperationImageUpload, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
	_, err = svc.Authorize(context.Background(), "u1", domain.OperationKind("audio_upload"), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	_, err = svc.Authorize(context.Background(), "u1", domain.OperationImageUpload, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidSize)
}

func TestKindForMediaType(t *testing.T) {
	cases := []struct {
		in   string
		want domain.OperationKind
		err  error
	}{
		{in: "", want: domain.OperationImageUpload},
		{in: "image/png", want: domain.OperationImageUpload},
		{in: "VIDEO", want: domain.OperationVideoUpload},
		{in: "video/mp4", want: domain.OperationVideoUpload},
		{in: "audio/mpeg", err: domain.ErrInvalidOperation},
	}
	for _, tc := range cases {
		got, err := domain.KindForMediaType(tc.in)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
