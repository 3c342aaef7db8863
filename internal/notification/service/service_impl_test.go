package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/mediavault/internal/config"
	"github.com/smallbiznis/mediavault/internal/notification/domain"
	"github.com/smallbiznis/mediavault/internal/providers/identity"
	"github.com/smallbiznis/mediavault/internal/providers/identity/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMail struct {
	to       []string
	template string
	data     map[string]any
}

type recordingEmail struct {
	sent []sentMail
}

func (r *recordingEmail) Send(context.Context, []string, string, string) error { return nil }

func (r *recordingEmail) SendTemplate(_ context.Context, to []string, templateName string, data map[string]any) error {
	r.sent = append(r.sent, sentMail{to: to, template: templateName, data: data})
	return nil
}

type recordingSlack struct {
	channel string
	message string
	err     error
}

func (r *recordingSlack) PostMessage(_ context.Context, channelID, message string) error {
	r.channel, r.message = channelID, message
	return r.err
}

func newTestService(t *testing.T) (domain.Service, *mocks.MockProvider, *recordingEmail, *recordingSlack) {
	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	mail := &recordingEmail{}
	alerts := &recordingSlack{}
	svc := NewService(Params{
		Log:      zap.NewNop(),
		Identity: idp,
		Email:    mail,
		Slack:    alerts,
		Cfg:      config.Config{Alert: config.AlertConfig{SlackChannel: "#billing-alerts"}},
	})
	return svc, idp, mail, alerts
}

func TestPaymentSucceededSendsReceiptEmail(t *testing.T) {
	svc, idp, mail, _ := newTestService(t)
	idp.EXPECT().GetUser(gomock.Any(), "user_1").
		Return(identity.User{ID: "user_1", Email: "jane@example.com", Name: "Jane"}, nil)

	err := svc.PaymentSucceeded(context.Background(), domain.PaymentNotice{
		PaymentID: "42",
		UserID:    "user_1",
		PlanID:    "pro",
		PlanName:  "Pro",
		Amount:    29900,
		Currency:  "EGP",
		EndDate:   time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, []string{"jane@example.com"}, mail.sent[0].to)
	assert.Equal(t, "payment_succeeded", mail.sent[0].template)
	assert.Equal(t, "299.00 EGP", mail.sent[0].data["amount"])
	assert.Equal(t, "2026-04-15", mail.sent[0].data["end_date"])
	assert.Equal(t, "Jane", mail.sent[0].data["name"])
}

func TestPaymentFailedWithoutEmail(t *testing.T) {
	svc, idp, mail, _ := newTestService(t)
	idp.EXPECT().GetUser(gomock.Any(), "user_1").Return(identity.User{ID: "user_1"}, nil)

	err := svc.PaymentFailed(context.Background(), domain.PaymentNotice{UserID: "user_1", PlanID: "pro"})
	assert.ErrorIs(t, err, ErrNoEmail)
	assert.Empty(t, mail.sent)
}

func TestPaymentFailedIdentityUnavailable(t *testing.T) {
	svc, idp, _, _ := newTestService(t)
	idp.EXPECT().GetUser(gomock.Any(), "user_1").Return(identity.User{}, identity.ErrUnavailable)

	err := svc.PaymentFailed(context.Background(), domain.PaymentNotice{UserID: "user_1"})
	assert.ErrorIs(t, err, identity.ErrUnavailable)
}

func TestActivationFailedPostsAlert(t *testing.T) {
	svc, _, _, alerts := newTestService(t)

	err := svc.ActivationFailed(context.Background(), domain.ConsistencyAlert{
		PaymentID: "42",
		UserID:    "user_1",
		PlanID:    "pro",
		Provider:  "paymob",
		OrderID:   "987",
		Cause:     "db down",
	})
	require.NoError(t, err)
	assert.Equal(t, "#billing-alerts", alerts.channel)
	assert.True(t, strings.Contains(alerts.message, "payment 42"))
	assert.Contains(t, alerts.message, "cause: db down")

	alerts.err = errors.New("boom")
	assert.Error(t, svc.ActivationFailed(context.Background(), domain.ConsistencyAlert{PaymentID: "43"}))
}
