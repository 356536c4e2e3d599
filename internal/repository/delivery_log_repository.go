package repository

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"newsletter_service/internal/models"
)

// DeliveryLogRepository is append-only: rows are never updated or deleted,
// so concurrent writers need no coordination.
type DeliveryLogRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewDeliveryLogRepository(db *pgxpool.Pool) *DeliveryLogRepository {
	return &DeliveryLogRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *DeliveryLogRepository) Append(ctx context.Context, rec *models.DeliveryRecord) error {
	if rec == nil {
		return fmt.Errorf("delivery record is nil")
	}
	if rec.MessageID <= 0 {
		return fmt.Errorf("invalid message id")
	}
	if rec.SubscriberID <= 0 {
		return fmt.Errorf("invalid subscriber id")
	}
	if strings.TrimSpace(rec.RecipientEmail) == "" {
		return fmt.Errorf("recipient email is empty")
	}
	if rec.Outcome != models.DeliveryOutcomeSuccess && rec.Outcome != models.DeliveryOutcomeFailed {
		return fmt.Errorf("invalid outcome: %s", rec.Outcome)
	}
	if rec.Outcome == models.DeliveryOutcomeFailed && rec.ErrorDetail == nil {
		return fmt.Errorf("error detail is required for failed outcome")
	}

	query := r.sb.
		Insert("delivery_records").
		Columns("message_id", "subscriber_id", "recipient_email", "outcome", "error_detail").
		Values(rec.MessageID, rec.SubscriberID, rec.RecipientEmail, rec.Outcome, rec.ErrorDetail).
		Suffix("RETURNING id, attempted_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build append delivery record sql: %w", err)
	}

	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&rec.ID, &rec.AttemptedAt); err != nil {
		return fmt.Errorf("append delivery record: %w", err)
	}

	return nil
}

func (r *DeliveryLogRepository) ListByMessage(ctx context.Context, messageID int64) ([]*models.DeliveryRecord, error) {
	if messageID <= 0 {
		return nil, fmt.Errorf("invalid message id")
	}

	query := r.sb.
		Select("id", "message_id", "subscriber_id", "recipient_email", "outcome", "error_detail", "attempted_at").
		From("delivery_records").
		Where(sq.Eq{"message_id": messageID}).
		OrderBy("attempted_at ASC", "id ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list delivery records sql: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivery records: %w", err)
	}
	defer rows.Close()

	var res []*models.DeliveryRecord
	for rows.Next() {
		var (
			rec    models.DeliveryRecord
			detail pgtype.Text
		)
		err := rows.Scan(
			&rec.ID, &rec.MessageID, &rec.SubscriberID, &rec.RecipientEmail,
			&rec.Outcome, &detail, &rec.AttemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery record row: %w", err)
		}
		if detail.Valid {
			s := detail.String
			rec.ErrorDetail = &s
		}
		res = append(res, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery record rows: %w", err)
	}

	return res, nil
}
