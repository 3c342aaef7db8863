package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/mediavault/internal/config"
	"github.com/smallbiznis/mediavault/internal/notification/domain"
	"github.com/smallbiznis/mediavault/internal/providers/email"
	"github.com/smallbiznis/mediavault/internal/providers/identity"
	"github.com/smallbiznis/mediavault/internal/providers/slack"
	"github.com/smallbiznis/mediavault/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNoEmail = errors.New("notification_no_email")

type Params struct {
	fx.In

	Log      *zap.Logger
	Identity identity.Provider
	Email    email.Provider
	Slack    slack.Provider
	Cfg      config.Config
}

type Service struct {
	log          *zap.Logger
	identity     identity.Provider
	email        email.Provider
	slack        slack.Provider
	alertChannel string
}

func NewService(p Params) domain.Service {
	return &Service{
		log:          p.Log.Named("notification.service"),
		identity:     p.Identity,
		email:        p.Email,
		slack:        p.Slack,
		alertChannel: p.Cfg.Alert.SlackChannel,
	}
}

func (s *Service) PaymentSucceeded(ctx context.Context, notice domain.PaymentNotice) error {
	data := noticeData(notice)
	if !notice.EndDate.IsZero() {
		data["end_date"] = notice.EndDate.UTC().Format("2006-01-02")
	}
	return s.sendToUser(ctx, notice.UserID, "payment_succeeded", data)
}

func (s *Service) PaymentFailed(ctx context.Context, notice domain.PaymentNotice) error {
	return s.sendToUser(ctx, notice.UserID, "payment_failed", noticeData(notice))
}

func (s *Service) ActivationFailed(ctx context.Context, alert domain.ConsistencyAlert) error {
	msg := fmt.Sprintf(
		":rotating_light: payment %s was charged but subscription activation failed\nuser=%s plan=%s provider=%s order=%s\ncause: %s",
		alert.PaymentID, alert.UserID, alert.PlanID, alert.Provider, alert.OrderID, alert.Cause,
	)
	if err := s.slack.PostMessage(ctx, s.alertChannel, msg); err != nil {
		s.log.Warn("failed to post consistency alert", zap.String("payment_id", alert.PaymentID), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) sendToUser(ctx context.Context, userID, templateName string, data map[string]any) error {
	user, err := s.identity.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user email: %w", err)
	}
	if strings.TrimSpace(user.Email) == "" {
		return ErrNoEmail
	}
	if user.Name != "" {
		data["name"] = user.Name
	}
	return s.email.SendTemplate(ctx, []string{user.Email}, templateName, data)
}

func noticeData(notice domain.PaymentNotice) map[string]any {
	planName := notice.PlanName
	if planName == "" {
		planName = notice.PlanID
	}
	return map[string]any{
		"payment_id": notice.PaymentID,
		"plan_name":  planName,
		"amount":     money.Format(notice.Amount, notice.Currency),
	}
}
