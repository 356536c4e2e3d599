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

type TopicRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewTopicRepository(db *pgxpool.Pool) *TopicRepository {
	return &TopicRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *TopicRepository) Create(ctx context.Context, topic *models.Topic) error {
	if topic == nil {
		return fmt.Errorf("topic is nil")
	}
	if strings.TrimSpace(topic.Name) == "" {
		return fmt.Errorf("topic name is empty")
	}

	query := r.sb.
		Insert("topics").
		Columns("name", "description").
		Values(topic.Name, topic.Description).
		Suffix("RETURNING id, created_at, updated_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build create topic sql: %w", err)
	}

	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&topic.ID, &topic.CreatedAt, &topic.UpdatedAt); err != nil {
		return fmt.Errorf("create topic: %w", err)
	}

	return nil
}

func (r *TopicRepository) Get(ctx context.Context, id int64) (*models.Topic, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid topic id")
	}

	query := r.sb.
		Select("id", "name", "description", "created_at", "updated_at").
		From("topics").
		Where(sq.Eq{"id": id}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get topic sql: %w", err)
	}

	var t models.Topic
	err = r.db.QueryRow(ctx, sqlStr, args...).Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get topic: %w", err)
	}

	return &t, nil
}

func (r *TopicRepository) List(ctx context.Context) ([]*models.Topic, error) {
	query := r.sb.
		Select("id", "name", "description", "created_at", "updated_at").
		From("topics").
		OrderBy("id ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list topics sql: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var res []*models.Topic
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan topic row: %w", err)
		}
		res = append(res, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic rows: %w", err)
	}

	return res, nil
}

func (r *TopicRepository) Update(ctx context.Context, topic *models.Topic) error {
	if topic == nil {
		return fmt.Errorf("topic is nil")
	}
	if topic.ID <= 0 {
		return fmt.Errorf("invalid topic id")
	}
	if strings.TrimSpace(topic.Name) == "" {
		return fmt.Errorf("topic name is empty")
	}

	query := r.sb.
		Update("topics").
		Set("name", topic.Name).
		Set("description", topic.Description).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": topic.ID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update topic sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *TopicRepository) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid topic id")
	}

	query := r.sb.Delete("topics").Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build delete topic sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *TopicRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, fmt.Errorf("topic name is empty")
	}

	query := r.sb.
		Select("1").
		From("topics").
		Where(sq.Eq{"name": name}).
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
		return false, fmt.Errorf("topic exists by name: %w", err)
	}

	return true, nil
}
