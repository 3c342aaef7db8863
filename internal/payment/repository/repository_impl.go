package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mediavault/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const paymentColumns = `id, user_id, plan_id, amount, currency, status, provider, provider_txn_id,
			needs_attention, metadata, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, user_id, plan_id, amount, currency, status, provider, provider_txn_id,
			needs_attention, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.UserID,
		payment.PlanID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.Provider,
		payment.ProviderTxnID,
		payment.NeedsAttention,
		payment.Metadata,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderTxn(ctx context.Context, db *gorm.DB, provider, providerTxnID string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE provider = ? AND provider_txn_id = ?
		 LIMIT 1`,
		provider,
		providerTxnID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) TransitionFromPending(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.PaymentStatus, metadata datatypes.JSON, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, metadata = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		metadata,
		now,
		id,
		domain.PaymentStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ForceFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSON, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, needs_attention = ?, metadata = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.PaymentStatusFailed,
		true,
		metadata,
		now,
		id,
		domain.PaymentStatusSuccess,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Reactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSON, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, needs_attention = ?, metadata = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND needs_attention = ?`,
		domain.PaymentStatusSuccess,
		false,
		metadata,
		now,
		id,
		domain.PaymentStatusFailed,
		true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Payment, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.NeedsAttention {
		where = append(where, "needs_attention = ?")
		args = append(args, true)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.BeforeID != 0 {
		where = append(where, "id < ?")
		args = append(args, filter.BeforeID)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, filter.Limit)

	var items []domain.Payment
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, order_id, event_type, payload,
			signature_valid, received_at, processed_at, processing_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.OrderID,
		event.EventType,
		event.Payload,
		event.SignatureValid,
		event.ReceivedAt,
		event.ProcessedAt,
		event.ProcessingError,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time, processingError *string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?, processing_error = ?
		 WHERE provider = ? AND provider_event_id = ? AND processed_at IS NULL`,
		processedAt,
		processingError,
		provider,
		providerEventID,
	).Error
}
