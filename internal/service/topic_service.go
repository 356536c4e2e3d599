package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"newsletter_service/internal/models"
	"newsletter_service/internal/repository"
)

type TopicService struct {
	topics *repository.TopicRepository
	log    zerolog.Logger
}

func NewTopicService(topics *repository.TopicRepository, log zerolog.Logger) *TopicService {
	return &TopicService{
		topics: topics,
		log:    log.With().Str("component", "topic_service").Logger(),
	}
}

func (s *TopicService) Create(ctx context.Context, name, description string) (*models.Topic, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: topic name is required", ErrInvalidInput)
	}

	exists, err := s.topics.ExistsByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check topic name: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: topic %q already exists", ErrInvalidInput, name)
	}

	topic := &models.Topic{
		Name:        name,
		Description: description,
	}
	if err := s.topics.Create(ctx, topic); err != nil {
		return nil, fmt.Errorf("create topic: %w", err)
	}

	s.log.Info().Int64("topic_id", topic.ID).Str("name", topic.Name).Msg("topic created")
	return topic, nil
}

func (s *TopicService) Get(ctx context.Context, id int64) (*models.Topic, error) {
	return s.topics.Get(ctx, id)
}

func (s *TopicService) List(ctx context.Context) ([]*models.Topic, error) {
	return s.topics.List(ctx)
}

func (s *TopicService) Update(ctx context.Context, id int64, name, description string) (*models.Topic, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: topic name is required", ErrInvalidInput)
	}

	topic, err := s.topics.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if topic.Name != name {
		exists, err := s.topics.ExistsByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check topic name: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: topic %q already exists", ErrInvalidInput, name)
		}
	}

	topic.Name = name
	topic.Description = description
	if err := s.topics.Update(ctx, topic); err != nil {
		return nil, fmt.Errorf("update topic: %w", err)
	}

	s.log.Info().Int64("topic_id", id).Msg("topic updated")
	return topic, nil
}

func (s *TopicService) Delete(ctx context.Context, id int64) error {
	if err := s.topics.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("topic_id", id).Msg("topic deleted")
	return nil
}
