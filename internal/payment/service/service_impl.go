package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/config"
	obsmetrics "github.com/smallbiznis/mediavault/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/mediavault/internal/payment/domain"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	"github.com/smallbiznis/mediavault/internal/providers/identity"
	"github.com/smallbiznis/mediavault/internal/providers/pdf"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	"github.com/smallbiznis/mediavault/pkg/db/pagination"
	"github.com/smallbiznis/mediavault/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultProviderTimeout = 10 * time.Second
	customerLookupTimeout  = 2 * time.Second
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Gateway    paymentdomain.Gateway
	Plans      plandomain.Service
	Subs       subscriptiondomain.Service
	Identity   identity.Provider
	PDF        pdf.Provider
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
	plans    plandomain.Service
	subs     subscriptiondomain.Service
	identity identity.Provider
	pdf      pdf.Provider

	currency        string
	providerTimeout time.Duration
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	timeout := p.Cfg.Payment.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		gateway:  p.Gateway,
		plans:    p.Plans,
		subs:     p.Subs,
		identity: p.Identity,
		pdf:      p.PDF,

		currency:        strings.ToUpper(strings.TrimSpace(p.Cfg.Payment.Currency)),
		providerTimeout: timeout,
		obsMetrics:      p.ObsMetrics,
	}
}

// Initiate creates a provider order for planID and records it as a PENDING payment.
// Nothing is persisted and the provider is not called unless every check passes.
func (s *Service) Initiate(ctx context.Context, userID, planID string) (*paymentdomain.InitiateResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, paymentdomain.ErrUnauthorized
	}

	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.IsFree() {
		return nil, paymentdomain.ErrFreePlanNotPayable
	}

	active, err := s.subs.GetActive(ctx, userID)
	switch {
	case err == nil:
		if active.PlanID == plan.ID {
			return nil, paymentdomain.ErrAlreadySubscribed
		}
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
	default:
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(plan.Currency))
	if currency == "" {
		currency = s.currency
	}
	now := s.clock.Now().UTC()
	reference := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	customer := s.lookupCustomer(ctx, userID)

	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	order, err := s.gateway.CreateOrder(providerCtx, paymentdomain.OrderRequest{
		MerchantReference: reference,
		AmountCents:       plan.Price,
		Currency:          currency,
		UserID:            userID,
		CustomerEmail:     customer.Email,
		CustomerName:      customer.Name,
		PlanID:            plan.ID,
		PlanName:          plan.Name,
	})
	cancel()
	if err != nil {
		s.log.Warn("payment provider order failed",
			zap.String("provider", s.gateway.Provider()),
			zap.String("plan_id", plan.ID),
			zap.String("merchant_reference", reference),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", paymentdomain.ErrProviderUnavailable, err)
	}

	metadata, err := paymentdomain.NewMetadata(paymentdomain.Initiation{
		MerchantReference: reference,
		ProviderOrder:     order.Raw,
		InitiatedAt:       now,
	})
	if err != nil {
		return nil, err
	}

	payment := paymentdomain.Payment{
		ID:            s.genID.Generate(),
		UserID:        userID,
		PlanID:        plan.ID,
		Amount:        plan.Price,
		Currency:      currency,
		Status:        paymentdomain.PaymentStatusPending,
		Provider:      s.gateway.Provider(),
		ProviderTxnID: order.OrderID,
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return nil, err
	}

	s.obsMetrics.RecordPaymentTransition(ctx, payment.Provider, string(payment.Status))
	s.log.Info("payment initiated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("user_id", userID),
		zap.String("plan_id", plan.ID),
		zap.String("order_id", order.OrderID),
	)

	return &paymentdomain.InitiateResult{
		PaymentID:  payment.ID.String(),
		PaymentURL: order.PaymentURL,
		OrderID:    order.OrderID,
		Amount: paymentdomain.Amount{
			Cents:    payment.Amount,
			Currency: currency,
			Display:  money.Format(payment.Amount, currency),
		},
		Plan: paymentdomain.PlanSummary{
			ID:                   plan.ID,
			Name:                 plan.Name,
			Price:                plan.Price,
			StorageLimitMB:       plan.StorageLimitMB,
			MaxUploadSizeMB:      plan.MaxUploadSizeMB,
			TransformationsLimit: plan.TransformationsLimit,
			TeamMembers:          plan.TeamMembers,
		},
	}, nil
}

func (s *Service) GetForUser(ctx context.Context, userID, paymentID string) (paymentdomain.Payment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrUnauthorized
	}
	id, err := parseID(paymentID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	// Another user's payment is reported as missing.
	if item == nil || item.UserID != userID {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentsRequest) (paymentdomain.ListPaymentsResponse, error) {
	filter := paymentdomain.ListFilter{
		NeedsAttention: req.NeedsAttention,
		UserID:         strings.TrimSpace(req.UserID),
	}

	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		switch paymentdomain.PaymentStatus(status) {
		case paymentdomain.PaymentStatusPending, paymentdomain.PaymentStatusSuccess, paymentdomain.PaymentStatusFailed:
			filter.Status = paymentdomain.PaymentStatus(status)
		default:
			return paymentdomain.ListPaymentsResponse{}, paymentdomain.ErrInvalidStatus
		}
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}
	if cursor != nil {
		before, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return paymentdomain.ListPaymentsResponse{}, pagination.ErrInvalidPageToken
		}
		filter.BeforeID = before
	}

	limit := pagination.Pagination{PageSize: int(req.PageSize)}.Limit()
	filter.Limit = limit + 1

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}

	items, pageInfo := pagination.Page(items, limit, func(p paymentdomain.Payment) string {
		return p.ID.String()
	})
	return paymentdomain.ListPaymentsResponse{
		PageInfo: pageInfo,
		Payments: items,
	}, nil
}

func (s *Service) Receipt(ctx context.Context, userID, paymentID string) (io.Reader, error) {
	payment, err := s.GetForUser(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != paymentdomain.PaymentStatusSuccess {
		return nil, paymentdomain.ErrPaymentNotSucceeded
	}

	planName := payment.PlanID
	if plan, err := s.plans.Get(ctx, payment.PlanID); err == nil {
		planName = plan.Name
	}
	customer := s.lookupCustomer(ctx, payment.UserID)
	if customer.Name == "" {
		customer.Name = payment.UserID
	}

	paidAt := payment.UpdatedAt.UTC()
	amount := money.Format(payment.Amount, payment.Currency)
	return s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		CompanyName:   "MediaVault",
		CompanyEmail:  "billing@mediavault.io",
		ReceiptNumber: payment.ID.String(),
		PaymentRef:    payment.ProviderTxnID,
		DatePaid:      paidAt.Format("2006-01-02"),
		ServicePeriod: paidAt.Format("2006-01-02") + " - " + paidAt.AddDate(0, 1, 0).Format("2006-01-02"),
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		PlanName:      planName,
		Amount:        amount,
		Provider:      payment.Provider,
	})
}

// lookupCustomer is best-effort; the gateway and the receipt accept blank contact fields.
func (s *Service) lookupCustomer(ctx context.Context, userID string) identity.User {
	if s.identity == nil {
		return identity.User{}
	}
	lookupCtx, cancel := context.WithTimeout(ctx, customerLookupTimeout)
	defer cancel()

	user, err := s.identity.GetUser(lookupCtx, userID)
	if err != nil {
		s.log.Debug("customer lookup failed", zap.String("user_id", userID), zap.Error(err))
		return identity.User{}
	}
	return user
}

func parseID(value string) (snowflake.ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, paymentdomain.ErrInvalidPayment
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, paymentdomain.ErrInvalidPayment
	}
	return snowflake.ID(n), nil
}
