package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// Payment moves PENDING to SUCCESS or FAILED exactly once. ProviderTxnID holds
// the provider order id and is the idempotency key for webhook deliveries.
type Payment struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	UserID         string         `json:"user_id" gorm:"type:text;not null;index"`
	PlanID         string         `json:"plan_id" gorm:"type:text;not null"`
	Amount         int64          `json:"amount" gorm:"not null"`
	Currency       string         `json:"currency" gorm:"type:text;not null"`
	Status         PaymentStatus  `json:"status" gorm:"type:text;not null"`
	Provider       string         `json:"provider" gorm:"type:text;not null"`
	ProviderTxnID  string         `json:"provider_txn_id" gorm:"type:text;not null"`
	NeedsAttention bool           `json:"needs_attention" gorm:"not null;default:false"`
	Metadata       datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (p Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}

// EventRecord is the audit row for one webhook delivery.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	OrderID         string         `json:"order_id" gorm:"type:text"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	SignatureValid  bool           `json:"signature_valid" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	ProcessingError *string        `json:"processing_error"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeIgnored          = "ignored"
	EventTypeUnprocessable    = "unprocessable"
)

// PaymentEvent is the canonical webhook event parsed by adapters.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	OrderID         string
	Type            string
	Success         bool
	Amount          int64
	Currency        string
	OccurredAt      time.Time
	RawPayload      []byte
}

// Metadata keys written into payments.metadata.
const (
	MetadataInitiation      = "initiation"
	MetadataEvents          = "events"
	MetadataActivationError = "activation_error"
	MetadataReactivated     = "reactivated"
)
