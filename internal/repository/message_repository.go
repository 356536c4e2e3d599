package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"newsletter_service/internal/models"
)

var messageColumns = []string{
	"id", "subject", "body", "topic_id", "scheduled_time", "state", "sent_at", "created_at", "updated_at",
}

type MessageRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("subject is empty")
	}
	if msg.TopicID <= 0 {
		return fmt.Errorf("invalid topic id")
	}
	if msg.ScheduledTime.IsZero() {
		return fmt.Errorf("scheduled_time is zero")
	}

	query := r.sb.
		Insert("messages").
		Columns("subject", "body", "topic_id", "scheduled_time", "state").
		Values(msg.Subject, msg.Body, msg.TopicID, msg.ScheduledTime, models.MessageStateScheduled).
		Suffix("RETURNING id, created_at, updated_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build create message sql: %w", err)
	}

	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	msg.State = models.MessageStateScheduled
	msg.SentAt = nil
	return nil
}

func (r *MessageRepository) Get(ctx context.Context, id int64) (*models.Message, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid message id")
	}

	query := r.sb.
		Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"id": id}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get message sql: %w", err)
	}

	msg, err := scanMessage(r.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	return msg, nil
}

func (r *MessageRepository) List(ctx context.Context) ([]*models.Message, error) {
	query := r.sb.
		Select(messageColumns...).
		From("messages").
		OrderBy("id ASC")

	return r.queryMany(ctx, query)
}

func (r *MessageRepository) ListByTopic(ctx context.Context, topicID int64) ([]*models.Message, error) {
	if topicID <= 0 {
		return nil, fmt.Errorf("invalid topic id")
	}

	query := r.sb.
		Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"topic_id": topicID}).
		OrderBy("id ASC")

	return r.queryMany(ctx, query)
}

func (r *MessageRepository) ListByState(ctx context.Context, state string) ([]*models.Message, error) {
	if !models.ValidMessageState(state) {
		return nil, fmt.Errorf("invalid state: %s", state)
	}

	query := r.sb.
		Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"state": state}).
		OrderBy("id ASC")

	return r.queryMany(ctx, query)
}

// GetDue returns scheduled messages whose time has come. Read-only; the
// ordering is for predictable batch processing, not a correctness need.
func (r *MessageRepository) GetDue(ctx context.Context, now time.Time) ([]*models.Message, error) {
	if now.IsZero() {
		return nil, fmt.Errorf("now is zero")
	}

	query := r.sb.
		Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"state": models.MessageStateScheduled}).
		Where(sq.LtOrEq{"scheduled_time": now}).
		OrderBy("scheduled_time ASC", "id ASC")

	return r.queryMany(ctx, query)
}

func (r *MessageRepository) Update(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}
	if msg.ID <= 0 {
		return fmt.Errorf("invalid message id")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("subject is empty")
	}

	query := r.sb.
		Update("messages").
		Set("subject", msg.Subject).
		Set("body", msg.Body).
		Set("scheduled_time", msg.ScheduledTime).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": msg.ID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update message sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateStateIf transitions the state only when the current state is one of
// from. Returns false when the row exists but the guard did not match, which
// keeps cancel-vs-dispatch and the batch driver's force-fail race-free.
// sent_at is stamped for terminal dispatch states, never for cancelled.
func (r *MessageRepository) UpdateStateIf(ctx context.Context, id int64, from []string, to string) (bool, error) {
	if id <= 0 {
		return false, fmt.Errorf("invalid message id")
	}
	if len(from) == 0 {
		return false, fmt.Errorf("from states are empty")
	}
	if !models.ValidMessageState(to) {
		return false, fmt.Errorf("invalid state: %s", to)
	}

	query := r.sb.
		Update("messages").
		Set("state", to).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "state": from})

	if to == models.MessageStateSent || to == models.MessageStateFailed {
		query = query.Set("sent_at", sq.Expr("NOW()"))
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build update message state sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("update message state: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid message id")
	}

	query := r.sb.Delete("messages").Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build delete message sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DispatchClaim is an exclusive hold on one message row for the duration of
// a dispatch. Exactly one of Complete or Release must be called.
type DispatchClaim interface {
	// Complete writes the terminal state plus sent_at and commits.
	Complete(ctx context.Context, state string) error
	// Release abandons the claim without touching the row.
	Release(ctx context.Context) error
}

// ClaimForDispatch locks the message row (SELECT ... FOR UPDATE) inside a
// transaction that stays open until the claim is finalized. A concurrent
// claim for the same message blocks here and then observes whatever state
// the first dispatch committed.
func (r *MessageRepository) ClaimForDispatch(ctx context.Context, id int64) (*models.Message, DispatchClaim, error) {
	if id <= 0 {
		return nil, nil, fmt.Errorf("invalid message id")
	}

	query := r.sb.
		Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build claim message sql: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin claim tx: %w", err)
	}

	msg, err := scanMessage(tx.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("claim message: %w", err)
	}

	return msg, &messageClaim{tx: tx, sb: r.sb, id: id}, nil
}

type messageClaim struct {
	tx pgx.Tx
	sb sq.StatementBuilderType
	id int64
}

func (c *messageClaim) Complete(ctx context.Context, state string) error {
	if state != models.MessageStateSent && state != models.MessageStateFailed {
		_ = c.tx.Rollback(ctx)
		return fmt.Errorf("invalid terminal state: %s", state)
	}

	query := c.sb.
		Update("messages").
		Set("state", state).
		Set("sent_at", sq.Expr("NOW()")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": c.id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		_ = c.tx.Rollback(ctx)
		return fmt.Errorf("build complete claim sql: %w", err)
	}

	if _, err := c.tx.Exec(ctx, sqlStr, args...); err != nil {
		_ = c.tx.Rollback(ctx)
		return fmt.Errorf("complete claim: %w", err)
	}

	if err := c.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit claim: %w", err)
	}

	return nil
}

func (c *messageClaim) Release(ctx context.Context) error {
	return c.tx.Rollback(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m      models.Message
		sentAt pgtype.Timestamptz
	)

	err := row.Scan(
		&m.ID, &m.Subject, &m.Body, &m.TopicID, &m.ScheduledTime,
		&m.State, &sentAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}

	return &m, nil
}

func (r *MessageRepository) queryMany(ctx context.Context, query sq.SelectBuilder) ([]*models.Message, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build messages sql: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var res []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		res = append(res, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	return res, nil
}
