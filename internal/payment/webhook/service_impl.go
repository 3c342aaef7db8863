package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/config"
	notificationdomain "github.com/smallbiznis/mediavault/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/mediavault/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/mediavault/internal/payment/domain"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const notifyTimeout = 5 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Gateway    paymentdomain.Gateway
	Subs       subscriptiondomain.Service
	Plans      plandomain.Service
	Notifier   notificationdomain.Service
	Cfg        config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     paymentdomain.Repository
	gateway  paymentdomain.Gateway
	subs     subscriptiondomain.Service
	plans    plandomain.Service
	notifier notificationdomain.Service

	requireSignature bool
	obsMetrics       *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.webhook"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		gateway:  p.Gateway,
		subs:     p.Subs,
		plans:    p.Plans,
		notifier: p.Notifier,

		requireSignature: p.Cfg.Payment.RequireWebhookSignature,
		obsMetrics:       p.ObsMetrics,
	}
}

// Handle reconciles one gateway delivery. Redeliveries and out-of-order
// deliveries are safe: a payment leaves PENDING at most once.
func (s *Service) Handle(ctx context.Context, rawBody []byte, signature string) (paymentdomain.Ack, error) {
	provider := s.gateway.Provider()
	now := s.clock.Now().UTC()

	signatureValid, err := s.verify(rawBody, signature)
	if err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider), zap.Bool("signature_present", strings.TrimSpace(signature) != ""))
		s.obsMetrics.RecordPaymentEvent(ctx, provider, "invalid_signature")
		return paymentdomain.Ack{}, err
	}

	event, err := s.gateway.Parse(rawBody)
	if err != nil {
		return s.recordUnparsed(ctx, provider, rawBody, signatureValid, now, err)
	}
	event.Provider = provider

	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		OrderID:         event.OrderID,
		EventType:       event.Type,
		Payload:         jsonPayload(rawBody),
		SignatureValid:  signatureValid,
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return paymentdomain.Ack{}, err
	}
	if !inserted {
		s.log.Debug("webhook event redelivered", zap.String("provider", provider), zap.String("provider_event_id", event.ProviderEventID))
	}

	ack, err := s.apply(ctx, event, now)
	if err != nil && !errors.Is(err, paymentdomain.ErrActivationFailed) {
		return paymentdomain.Ack{}, err
	}

	var processingError *string
	switch {
	case err != nil:
		msg := err.Error()
		processingError = &msg
	case ack.Status == paymentdomain.AckUnknownOrder:
		msg := string(paymentdomain.AckUnknownOrder)
		processingError = &msg
	}
	if markErr := s.repo.MarkEventProcessed(ctx, s.db, provider, event.ProviderEventID, now, processingError); markErr != nil {
		s.log.Warn("failed to mark webhook event processed", zap.String("provider_event_id", event.ProviderEventID), zap.Error(markErr))
	}

	outcome := string(ack.Status)
	if err != nil {
		outcome = "activation_failed"
	}
	s.obsMetrics.RecordPaymentEvent(ctx, provider, outcome)
	return ack, err
}

func (s *Service) verify(rawBody []byte, signature string) (bool, error) {
	if strings.TrimSpace(signature) == "" {
		if s.requireSignature {
			return false, paymentdomain.ErrInvalidSignature
		}
		s.log.Warn("accepting unsigned webhook delivery", zap.String("provider", s.gateway.Provider()))
		return false, nil
	}
	if err := s.gateway.Verify(rawBody, signature); err != nil {
		return false, paymentdomain.ErrInvalidSignature
	}
	return true, nil
}

// recordUnparsed stores a delivery that could not be turned into an event,
// keyed by the body hash so repeats collapse to one row.
func (s *Service) recordUnparsed(ctx context.Context, provider string, rawBody []byte, signatureValid bool, now time.Time, cause error) (paymentdomain.Ack, error) {
	sum := sha256.Sum256(rawBody)
	key := "sha256:" + hex.EncodeToString(sum[:])

	eventType := paymentdomain.EventTypeUnprocessable
	status := paymentdomain.AckUnprocessable
	var processingError *string
	if errors.Is(cause, paymentdomain.ErrEventIgnored) {
		eventType = paymentdomain.EventTypeIgnored
		status = paymentdomain.AckIgnored
	} else {
		msg := cause.Error()
		processingError = &msg
		s.log.Warn("unprocessable webhook delivery", zap.String("provider", provider), zap.String("event_key", key), zap.Error(cause))
	}

	if _, err := s.repo.InsertEvent(ctx, s.db, &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: key,
		EventType:       eventType,
		Payload:         jsonPayload(rawBody),
		SignatureValid:  signatureValid,
		ReceivedAt:      now,
		ProcessedAt:     &now,
		ProcessingError: processingError,
	}); err != nil {
		return paymentdomain.Ack{}, err
	}

	s.obsMetrics.RecordPaymentEvent(ctx, provider, string(status))
	return paymentdomain.Ack{Status: status}, nil
}

func (s *Service) apply(ctx context.Context, event *paymentdomain.PaymentEvent, now time.Time) (paymentdomain.Ack, error) {
	payment, err := s.repo.FindByProviderTxn(ctx, s.db, event.Provider, event.OrderID)
	if err != nil {
		return paymentdomain.Ack{}, err
	}
	if payment == nil {
		s.log.Warn("webhook for unknown order",
			zap.String("provider", event.Provider),
			zap.String("order_id", event.OrderID),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return paymentdomain.Ack{Status: paymentdomain.AckUnknownOrder}, nil
	}
	if payment.IsTerminal() {
		return duplicateAck(payment), nil
	}

	target, note := s.targetStatus(payment, event)
	metadata, err := paymentdomain.AppendEvent(payment.Metadata, paymentdomain.EventEntry{
		ProviderEventID: event.ProviderEventID,
		Type:            event.Type,
		Success:         event.Success,
		Amount:          event.Amount,
		Currency:        event.Currency,
		OccurredAt:      event.OccurredAt,
		ReceivedAt:      now,
		Note:            note,
	})
	if err != nil {
		return paymentdomain.Ack{}, err
	}

	moved, err := s.repo.TransitionFromPending(ctx, s.db, payment.ID, target, metadata, now)
	if err != nil {
		return paymentdomain.Ack{}, err
	}
	if !moved {
		// A concurrent delivery settled it first.
		current, err := s.repo.FindByID(ctx, s.db, payment.ID)
		if err != nil {
			return paymentdomain.Ack{}, err
		}
		if current == nil {
			current = payment
		}
		return duplicateAck(current), nil
	}

	payment.Status = target
	payment.Metadata = metadata
	payment.UpdatedAt = now
	s.obsMetrics.RecordPaymentTransition(ctx, payment.Provider, string(target))
	s.log.Info("payment settled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("user_id", payment.UserID),
		zap.String("status", string(target)),
		zap.String("provider_event_id", event.ProviderEventID),
	)

	ack := paymentdomain.Ack{
		Status:        paymentdomain.AckProcessed,
		PaymentID:     payment.ID.String(),
		PaymentStatus: target,
	}

	if target == paymentdomain.PaymentStatusFailed {
		s.notify(ctx, payment, time.Time{})
		return ack, nil
	}

	sub, err := s.subs.Activate(ctx, payment.UserID, payment.PlanID)
	if err != nil {
		return s.activationFailed(ctx, payment, event, now, err)
	}
	s.notify(ctx, payment, sub.EndDate)
	return ack, nil
}

// targetStatus settles a success whose amount or currency disagrees with the payment as FAILED.
func (s *Service) targetStatus(payment *paymentdomain.Payment, event *paymentdomain.PaymentEvent) (paymentdomain.PaymentStatus, string) {
	if !event.Success {
		return paymentdomain.PaymentStatusFailed, ""
	}
	currencyMismatch := event.Currency != "" && !strings.EqualFold(event.Currency, payment.Currency)
	if event.Amount != payment.Amount || currencyMismatch {
		s.log.Warn("webhook amount mismatch",
			zap.String("payment_id", payment.ID.String()),
			zap.Int64("expected_amount", payment.Amount),
			zap.Int64("received_amount", event.Amount),
			zap.String("expected_currency", payment.Currency),
			zap.String("received_currency", event.Currency),
		)
		return paymentdomain.PaymentStatusFailed, "amount_mismatch"
	}
	return paymentdomain.PaymentStatusSuccess, ""
}

// activationFailed flags a charged payment whose subscription could not be written.
func (s *Service) activationFailed(ctx context.Context, payment *paymentdomain.Payment, event *paymentdomain.PaymentEvent, now time.Time, cause error) (paymentdomain.Ack, error) {
	s.log.Error("subscription activation failed after payment",
		zap.String("payment_id", payment.ID.String()),
		zap.String("user_id", payment.UserID),
		zap.String("plan_id", payment.PlanID),
		zap.Error(cause),
	)

	metadata, err := paymentdomain.SetMetadata(payment.Metadata, paymentdomain.MetadataActivationError, paymentdomain.ActivationError{
		Code:    paymentdomain.ErrActivationFailed.Error(),
		Message: cause.Error(),
		At:      now,
	})
	if err != nil {
		metadata = payment.Metadata
	}
	if _, err := s.repo.ForceFailed(ctx, s.db, payment.ID, metadata, now); err != nil {
		s.log.Error("failed to flag payment for attention", zap.String("payment_id", payment.ID.String()), zap.Error(err))
	} else {
		s.obsMetrics.RecordPaymentTransition(ctx, payment.Provider, string(paymentdomain.PaymentStatusFailed))
	}

	if s.notifier != nil {
		alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		_ = s.notifier.ActivationFailed(alertCtx, notificationdomain.ConsistencyAlert{
			PaymentID: payment.ID.String(),
			UserID:    payment.UserID,
			PlanID:    payment.PlanID,
			Provider:  payment.Provider,
			OrderID:   event.OrderID,
			Cause:     cause.Error(),
		})
		cancel()
	}

	return paymentdomain.Ack{
		Status:        paymentdomain.AckProcessed,
		PaymentID:     payment.ID.String(),
		PaymentStatus: paymentdomain.PaymentStatusFailed,
	}, fmt.Errorf("%w: %w", paymentdomain.ErrActivationFailed, cause)
}

// Reactivate re-runs activation for a payment flagged after a failed activation.
func (s *Service) Reactivate(ctx context.Context, paymentID, actorID string) (paymentdomain.Payment, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(paymentID), 10, 64)
	if err != nil || id <= 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPayment
	}

	payment, err := s.repo.FindByID(ctx, s.db, snowflake.ID(id))
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	if payment.Status != paymentdomain.PaymentStatusFailed || !payment.NeedsAttention {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotReactivatable
	}

	sub, err := s.subs.Activate(ctx, payment.UserID, payment.PlanID)
	if err != nil {
		s.log.Warn("reactivation failed", zap.String("payment_id", payment.ID.String()), zap.Error(err))
		return paymentdomain.Payment{}, fmt.Errorf("%w: %w", paymentdomain.ErrActivationFailed, err)
	}

	now := s.clock.Now().UTC()
	metadata, err := paymentdomain.SetMetadata(payment.Metadata, paymentdomain.MetadataReactivated, paymentdomain.Reactivation{
		ActorID: actorID,
		At:      now,
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	moved, err := s.repo.Reactivate(ctx, s.db, payment.ID, metadata, now)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if !moved {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotReactivatable
	}

	payment.Status = paymentdomain.PaymentStatusSuccess
	payment.NeedsAttention = false
	payment.Metadata = metadata
	payment.UpdatedAt = now

	s.obsMetrics.RecordPaymentTransition(ctx, payment.Provider, string(payment.Status))
	s.log.Info("payment reactivated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("actor_id", actorID),
	)
	s.notify(ctx, payment, sub.EndDate)
	return *payment, nil
}

// notify is best-effort; failures are logged only.
func (s *Service) notify(ctx context.Context, payment *paymentdomain.Payment, endDate time.Time) {
	if s.notifier == nil {
		return
	}
	notice := notificationdomain.PaymentNotice{
		PaymentID: payment.ID.String(),
		UserID:    payment.UserID,
		PlanID:    payment.PlanID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		EndDate:   endDate,
	}
	if s.plans != nil {
		if plan, err := s.plans.Get(ctx, payment.PlanID); err == nil {
			notice.PlanName = plan.Name
		}
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	var err error
	if payment.Status == paymentdomain.PaymentStatusSuccess {
		err = s.notifier.PaymentSucceeded(notifyCtx, notice)
	} else {
		err = s.notifier.PaymentFailed(notifyCtx, notice)
	}
	if err != nil {
		s.log.Warn("payment notification failed", zap.String("payment_id", notice.PaymentID), zap.Error(err))
	}
}

func duplicateAck(payment *paymentdomain.Payment) paymentdomain.Ack {
	return paymentdomain.Ack{
		Status:        paymentdomain.AckDuplicate,
		PaymentID:     payment.ID.String(),
		PaymentStatus: payment.Status,
	}
}

// jsonPayload keeps non-JSON bodies storable in the payload column.
func jsonPayload(rawBody []byte) datatypes.JSON {
	if json.Valid(rawBody) {
		return datatypes.JSON(rawBody)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(rawBody)})
	return datatypes.JSON(wrapped)
}
