package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"newsletter_service/internal/models"
)

type SubscriberRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewSubscriberRepository(db *pgxpool.Pool) *SubscriberRepository {
	return &SubscriberRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *SubscriberRepository) Create(ctx context.Context, sub *models.Subscriber) error {
	if sub == nil {
		return fmt.Errorf("subscriber is nil")
	}
	if strings.TrimSpace(sub.Email) == "" {
		return fmt.Errorf("email is empty")
	}
	if sub.TopicID <= 0 {
		return fmt.Errorf("invalid topic id")
	}

	query := r.sb.
		Insert("subscribers").
		Columns("email", "name", "topic_id", "active").
		Values(sub.Email, sub.Name, sub.TopicID, true).
		Suffix("RETURNING id, subscribed_at, updated_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build create subscriber sql: %w", err)
	}

	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&sub.ID, &sub.SubscribedAt, &sub.UpdatedAt); err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}

	sub.Active = true
	return nil
}

func (r *SubscriberRepository) Get(ctx context.Context, id int64) (*models.Subscriber, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid subscriber id")
	}

	query := r.sb.
		Select("id", "email", "name", "topic_id", "active", "subscribed_at", "updated_at").
		From("subscribers").
		Where(sq.Eq{"id": id}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get subscriber sql: %w", err)
	}

	var s models.Subscriber
	err = r.db.QueryRow(ctx, sqlStr, args...).Scan(
		&s.ID, &s.Email, &s.Name, &s.TopicID, &s.Active, &s.SubscribedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscriber: %w", err)
	}

	return &s, nil
}

func (r *SubscriberRepository) List(ctx context.Context) ([]*models.Subscriber, error) {
	query := r.sb.
		Select("id", "email", "name", "topic_id", "active", "subscribed_at", "updated_at").
		From("subscribers").
		OrderBy("id ASC")

	return r.queryMany(ctx, query)
}

// GetActiveByTopic returns the active subscribers of a topic. When the
// result is empty it distinguishes "no subscribers" from "no such topic"
// so callers get ErrNotFound for a dangling topic id.
func (r *SubscriberRepository) GetActiveByTopic(ctx context.Context, topicID int64) ([]*models.Subscriber, error) {
	if topicID <= 0 {
		return nil, fmt.Errorf("invalid topic id")
	}

	query := r.sb.
		Select("id", "email", "name", "topic_id", "active", "subscribed_at", "updated_at").
		From("subscribers").
		Where(sq.Eq{"topic_id": topicID, "active": true}).
		OrderBy("id ASC")

	subs, err := r.queryMany(ctx, query)
	if err != nil {
		return nil, err
	}

	if len(subs) == 0 {
		exists, err := r.topicExists(ctx, topicID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
	}

	return subs, nil
}

func (r *SubscriberRepository) Update(ctx context.Context, sub *models.Subscriber) error {
	if sub == nil {
		return fmt.Errorf("subscriber is nil")
	}
	if sub.ID <= 0 {
		return fmt.Errorf("invalid subscriber id")
	}
	if strings.TrimSpace(sub.Email) == "" {
		return fmt.Errorf("email is empty")
	}

	query := r.sb.
		Update("subscribers").
		Set("email", sub.Email).
		Set("name", sub.Name).
		Set("active", sub.Active).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": sub.ID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update subscriber sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update subscriber: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetActive flips only the active flag; unsubscribe is SetActive(id, false).
func (r *SubscriberRepository) SetActive(ctx context.Context, id int64, active bool) error {
	if id <= 0 {
		return fmt.Errorf("invalid subscriber id")
	}

	query := r.sb.
		Update("subscribers").
		Set("active", active).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build set subscriber active sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("set subscriber active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *SubscriberRepository) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid subscriber id")
	}

	query := r.sb.Delete("subscribers").Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build delete subscriber sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *SubscriberRepository) ExistsByEmailAndTopic(ctx context.Context, email string, topicID int64) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, fmt.Errorf("email is empty")
	}
	if topicID <= 0 {
		return false, fmt.Errorf("invalid topic id")
	}

	query := r.sb.
		Select("1").
		From("subscribers").
		Where(sq.Eq{"email": email, "topic_id": topicID}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build subscriber exists sql: %w", err)
	}

	var one int
	err = r.db.QueryRow(ctx, sqlStr, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("subscriber exists: %w", err)
	}

	return true, nil
}

func (r *SubscriberRepository) queryMany(ctx context.Context, query sq.SelectBuilder) ([]*models.Subscriber, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build subscribers sql: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var res []*models.Subscriber
	for rows.Next() {
		var s models.Subscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.Name, &s.TopicID, &s.Active, &s.SubscribedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber row: %w", err)
		}
		res = append(res, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriber rows: %w", err)
	}

	return res, nil
}

func (r *SubscriberRepository) topicExists(ctx context.Context, topicID int64) (bool, error) {
	query := r.sb.
		Select("1").
		From("topics").
		Where(sq.Eq{"id": topicID}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build topic exists sql: %w", err)
	}

	var one int
	err = r.db.QueryRow(ctx, sqlStr, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("topic exists: %w", err)
	}

	return true, nil
}
