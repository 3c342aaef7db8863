// Package paymenttest holds fixtures shared by the payment service and webhook tests.
package paymenttest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	paymentdomain "github.com/smallbiznis/mediavault/internal/payment/domain"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	"gorm.io/gorm"
)

// SetupDB opens an in-memory database with the payments schema.
func SetupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			plan_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			provider TEXT NOT NULL,
			provider_txn_id TEXT NOT NULL,
			needs_attention BOOLEAN NOT NULL DEFAULT FALSE,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_payments_provider_txn ON payments(provider, provider_txn_id)`,
		`CREATE TABLE payment_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			order_id TEXT,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			signature_valid BOOLEAN NOT NULL,
			received_at DATETIME NOT NULL,
			processed_at DATETIME,
			processing_error TEXT
		)`,
		`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events(provider, provider_event_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func AssertCount(t *testing.T, db *gorm.DB, table string, expected int64) {
	t.Helper()
	var count int64
	if err := db.Table(table).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	if count != expected {
		t.Fatalf("expected %d rows in %s, got %d", expected, table, count)
	}
}

// DefaultPlans mirrors the shipped catalog.
func DefaultPlans() *Plans {
	return &Plans{plans: map[string]plandomain.Plan{
		"free":     {ID: "free", Name: "Free", Price: 0, StorageLimitMB: 500, MaxUploadSizeMB: 10, TransformationsLimit: 25, TeamMembers: 1},
		"pro":      {ID: "pro", Name: "Pro", Price: 29900, Currency: "EGP", StorageLimitMB: 10240, MaxUploadSizeMB: 100, TransformationsLimit: 1000, TeamMembers: 5},
		"business": {ID: "business", Name: "Business", Price: 99900, Currency: "EGP", StorageLimitMB: 102400, MaxUploadSizeMB: 500, TransformationsLimit: 10000, TeamMembers: -1},
	}}
}

type Plans struct {
	plans map[string]plandomain.Plan
}

func (p *Plans) LimitsFor(ctx context.Context, planID *string) (plandomain.PlanLimits, error) {
	id := plandomain.FreePlanID
	if planID != nil {
		id = *planID
	}
	plan, err := p.Get(ctx, id)
	return plan.Limits(), err
}

func (p *Plans) Get(_ context.Context, id string) (plandomain.Plan, error) {
	if id == "" {
		return plandomain.Plan{}, plandomain.ErrInvalidPlan
	}
	plan, ok := p.plans[id]
	if !ok {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}
	return plan, nil
}

func (p *Plans) List(context.Context) ([]plandomain.Plan, error) { return nil, nil }

func (p *Plans) Free(ctx context.Context) (plandomain.Plan, error) {
	return p.Get(ctx, plandomain.FreePlanID)
}

func (p *Plans) Invalidate() {}

// Subscriptions records activations in memory.
type Subscriptions struct {
	mu          sync.Mutex
	Active      map[string]subscriptiondomain.Subscription
	ActivateErr error
	Activations []string
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{Active: map[string]subscriptiondomain.Subscription{}}
}

func (s *Subscriptions) Activate(_ context.Context, userID, planID string) (subscriptiondomain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Activations = append(s.Activations, userID+":"+planID)
	if s.ActivateErr != nil {
		return subscriptiondomain.Subscription{}, s.ActivateErr
	}
	now := time.Now().UTC()
	sub := subscriptiondomain.Subscription{
		UserID:    userID,
		PlanID:    planID,
		Status:    subscriptiondomain.SubscriptionStatusActive,
		StartDate: now,
		EndDate:   now.AddDate(0, 1, 0),
	}
	s.Active[userID] = sub
	return sub, nil
}

func (s *Subscriptions) GetActive(_ context.Context, userID string) (subscriptiondomain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.Active[userID]
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Subscriptions) Cancel(context.Context, string) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
}

func (s *Subscriptions) ExpireDue(context.Context, int) (int, error) { return 0, nil }

func (s *Subscriptions) ActivationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Activations)
}

// Gateway is a scripted payment gateway.
type Gateway struct {
	mu       sync.Mutex
	Name     string
	OrderID  string
	Err      error
	Requests []paymentdomain.OrderRequest
}

func (g *Gateway) Provider() string {
	if g.Name == "" {
		return "paymob"
	}
	return g.Name
}

func (g *Gateway) CreateOrder(_ context.Context, req paymentdomain.OrderRequest) (*paymentdomain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.Err != nil {
		return nil, g.Err
	}
	orderID := g.OrderID
	if orderID == "" {
		orderID = fmt.Sprintf("order_%d", len(g.Requests))
	}
	return &paymentdomain.Order{
		OrderID:    orderID,
		PaymentURL: "https://pay.example/checkout/" + orderID,
		Raw:        []byte(`{"id":"` + orderID + `"}`),
	}, nil
}

func (g *Gateway) Verify([]byte, string) error { return nil }

func (g *Gateway) Parse([]byte) (*paymentdomain.PaymentEvent, error) {
	return nil, paymentdomain.ErrInvalidPayload
}

func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}
