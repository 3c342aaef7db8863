package domain

import (
	"context"
	"encoding/json"
	"time"
)

type AdapterConfig struct {
	BaseURL       string
	APIKey        string
	HMACSecret    string
	IntegrationID int64
	IframeID      string
	Currency      string
	Timeout       time.Duration
}

type OrderRequest struct {
	MerchantReference string
	AmountCents       int64
	Currency          string
	UserID            string
	CustomerEmail     string
	CustomerName      string
	PlanID            string
	PlanName          string
}

// Order is a provider-side checkout session.
type Order struct {
	OrderID    string
	PaymentURL string
	Raw        json.RawMessage
}

// Gateway is the single payment provider the service talks to.
type Gateway interface {
	Provider() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// Verify checks signature against the raw, unparsed body.
	Verify(payload []byte, signature string) error
	Parse(payload []byte) (*PaymentEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}
