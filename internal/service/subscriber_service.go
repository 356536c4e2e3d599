package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsletter_service/internal/cache"
	"newsletter_service/internal/models"
	"newsletter_service/internal/repository"
)

type SubscriberService struct {
	subscribers *repository.SubscriberRepository
	topics      *repository.TopicRepository
	cache       cache.Cache
	cacheTTL    time.Duration
	log         zerolog.Logger
}

func NewSubscriberService(
	subscribers *repository.SubscriberRepository,
	topics *repository.TopicRepository,
	c cache.Cache,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *SubscriberService {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}

	return &SubscriberService{
		subscribers: subscribers,
		topics:      topics,
		cache:       c,
		cacheTTL:    cacheTTL,
		log:         log.With().Str("component", "subscriber_service").Logger(),
	}
}

func (s *SubscriberService) Create(ctx context.Context, email, name string, topicID int64) (*models.Subscriber, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if topicID <= 0 {
		return nil, fmt.Errorf("%w: topic id is required", ErrInvalidInput)
	}

	if _, err := s.topics.Get(ctx, topicID); err != nil {
		return nil, err
	}

	exists, err := s.subscribers.ExistsByEmailAndTopic(ctx, email, topicID)
	if err != nil {
		return nil, fmt.Errorf("check subscriber: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s is already subscribed to topic %d", ErrInvalidInput, email, topicID)
	}

	sub := &models.Subscriber{
		Email:   email,
		Name:    name,
		TopicID: topicID,
	}
	if err := s.subscribers.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	s.invalidateTopic(ctx, topicID)
	s.log.Info().Int64("subscriber_id", sub.ID).Int64("topic_id", topicID).Msg("subscriber created")
	return sub, nil
}

func (s *SubscriberService) Get(ctx context.Context, id int64) (*models.Subscriber, error) {
	return s.subscribers.Get(ctx, id)
}

func (s *SubscriberService) List(ctx context.Context) ([]*models.Subscriber, error) {
	return s.subscribers.List(ctx)
}

// GetActiveByTopic serves read traffic from the cache when possible; the
// dispatch path deliberately bypasses this and reads the repository
// directly, so a stale cache can never route mail to an unsubscribed
// recipient.
func (s *SubscriberService) GetActiveByTopic(ctx context.Context, topicID int64) ([]*models.Subscriber, error) {
	key := cache.SubscribersByTopicKey(topicID)

	if s.cache != nil {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var subs []*models.Subscriber
			if err := json.Unmarshal(b, &subs); err == nil {
				return subs, nil
			}
		}
	}

	subs, err := s.subscribers.GetActiveByTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if b, err := json.Marshal(subs); err == nil {
			if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("cache set")
			}
		}
	}

	return subs, nil
}

func (s *SubscriberService) Update(ctx context.Context, id int64, email, name string, active *bool) (*models.Subscriber, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	sub, err := s.subscribers.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sub.Email = email
	sub.Name = name
	if active != nil {
		sub.Active = *active
	}

	if err := s.subscribers.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscriber: %w", err)
	}

	s.invalidateTopic(ctx, sub.TopicID)
	s.log.Info().Int64("subscriber_id", id).Msg("subscriber updated")
	return sub, nil
}

func (s *SubscriberService) Unsubscribe(ctx context.Context, id int64) error {
	sub, err := s.subscribers.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.subscribers.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}

	s.invalidateTopic(ctx, sub.TopicID)
	s.log.Info().Int64("subscriber_id", id).Msg("subscriber unsubscribed")
	return nil
}

func (s *SubscriberService) Delete(ctx context.Context, id int64) error {
	sub, err := s.subscribers.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.subscribers.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidateTopic(ctx, sub.TopicID)
	s.log.Info().Int64("subscriber_id", id).Msg("subscriber deleted")
	return nil
}

func (s *SubscriberService) invalidateTopic(ctx context.Context, topicID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cache.SubscribersByTopicKey(topicID)); err != nil {
		s.log.Warn().Err(err).Int64("topic_id", topicID).Msg("cache invalidate")
	}
}
