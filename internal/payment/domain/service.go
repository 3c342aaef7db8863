package domain

import (
	"context"
	"errors"
	"io"

	"github.com/smallbiznis/mediavault/pkg/db/pagination"
)

type Amount struct {
	Cents    int64  `json:"cents"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
}

type PlanSummary struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Price                int64  `json:"price"`
	StorageLimitMB       int64  `json:"storageLimitMB"`
	MaxUploadSizeMB      int64  `json:"maxUploadSizeMB"`
	TransformationsLimit int64  `json:"transformationsLimit"`
	TeamMembers          int    `json:"teamMembers"`
}

type InitiateResult struct {
	PaymentID  string      `json:"paymentId"`
	PaymentURL string      `json:"paymentUrl"`
	OrderID    string      `json:"orderId"`
	Amount     Amount      `json:"amount"`
	Plan       PlanSummary `json:"plan"`
}

type ListPaymentsRequest struct {
	Status         string
	NeedsAttention bool
	UserID         string
	PageToken      string
	PageSize       int32
}

type ListPaymentsResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Initiate(ctx context.Context, userID, planID string) (*InitiateResult, error)
	// GetForUser returns the payment only when userID owns it.
	GetForUser(ctx context.Context, userID, paymentID string) (Payment, error)
	List(ctx context.Context, req ListPaymentsRequest) (ListPaymentsResponse, error)
	Receipt(ctx context.Context, userID, paymentID string) (io.Reader, error)
}

type AckStatus string

const (
	AckProcessed     AckStatus = "processed"
	AckDuplicate     AckStatus = "duplicate"
	AckIgnored       AckStatus = "ignored"
	AckUnknownOrder  AckStatus = "unknown_order"
	AckUnprocessable AckStatus = "unprocessable"
	// AckFailed acknowledges a delivery our side could not process.
	AckFailed AckStatus = "error"
)

// Ack is what the webhook endpoint reports back to the provider.
type Ack struct {
	Status        AckStatus     `json:"status"`
	PaymentID     string        `json:"paymentId,omitempty"`
	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
}

type WebhookService interface {
	// Handle acknowledges every delivery except a bad signature (ErrInvalidSignature)
	// and an activation failure after a confirmed payment (ErrActivationFailed).
	Handle(ctx context.Context, rawBody []byte, signature string) (Ack, error)
	// Reactivate retries activation for a payment flagged by a failed activation.
	Reactivate(ctx context.Context, paymentID, actorID string) (Payment, error)
}

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")

	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidPayment      = errors.New("invalid_payment")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrFreePlanNotPayable  = errors.New("free_plan_not_payable")
	ErrAlreadySubscribed   = errors.New("already_subscribed")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrPaymentNotFound     = errors.New("payment_not_found")
	ErrPaymentNotSucceeded = errors.New("payment_not_succeeded")

	ErrActivationFailed        = errors.New("activation_failed")
	ErrPaymentNotReactivatable = errors.New("payment_not_reactivatable")
)
