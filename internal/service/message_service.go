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

type MessageService struct {
	messages   *repository.MessageRepository
	topics     *repository.TopicRepository
	deliveries *repository.DeliveryLogRepository
	cache      cache.Cache
	cacheTTL   time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

func NewMessageService(
	messages *repository.MessageRepository,
	topics *repository.TopicRepository,
	deliveries *repository.DeliveryLogRepository,
	c cache.Cache,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *MessageService {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}

	return &MessageService{
		messages:   messages,
		topics:     topics,
		deliveries: deliveries,
		cache:      c,
		cacheTTL:   cacheTTL,
		now:        time.Now,
		log:        log.With().Str("component", "message_service").Logger(),
	}
}

func (s *MessageService) Create(ctx context.Context, subject, body string, topicID int64, scheduledTime time.Time) (*models.Message, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if topicID <= 0 {
		return nil, fmt.Errorf("%w: topic id is required", ErrInvalidInput)
	}
	if !scheduledTime.After(s.now()) {
		return nil, fmt.Errorf("%w: scheduled time must be in the future", ErrInvalidInput)
	}

	if _, err := s.topics.Get(ctx, topicID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		Subject:       subject,
		Body:          body,
		TopicID:       topicID,
		ScheduledTime: scheduledTime,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.invalidateLists(ctx)
	s.log.Info().
		Int64("message_id", msg.ID).
		Int64("topic_id", topicID).
		Time("scheduled_time", scheduledTime).
		Msg("message created")
	return msg, nil
}

func (s *MessageService) Get(ctx context.Context, id int64) (*models.Message, error) {
	return s.messages.Get(ctx, id)
}

func (s *MessageService) List(ctx context.Context) ([]*models.Message, error) {
	return s.cachedList(ctx, cache.MessageListKey(0, ""), func() ([]*models.Message, error) {
		return s.messages.List(ctx)
	})
}

func (s *MessageService) ListByTopic(ctx context.Context, topicID int64) ([]*models.Message, error) {
	if topicID <= 0 {
		return nil, fmt.Errorf("%w: topic id is required", ErrInvalidInput)
	}
	return s.cachedList(ctx, cache.MessageListKey(topicID, ""), func() ([]*models.Message, error) {
		return s.messages.ListByTopic(ctx, topicID)
	})
}

func (s *MessageService) ListByState(ctx context.Context, state string) ([]*models.Message, error) {
	if !models.ValidMessageState(state) {
		return nil, fmt.Errorf("%w: state must be scheduled|sent|failed|cancelled", ErrInvalidInput)
	}
	return s.cachedList(ctx, cache.MessageListKey(0, state), func() ([]*models.Message, error) {
		return s.messages.ListByState(ctx, state)
	})
}

// Update changes subject and body; the scheduled time moves only when the
// new value is in the future. A sent message can no longer be edited.
func (s *MessageService) Update(ctx context.Context, id int64, subject, body string, scheduledTime *time.Time) (*models.Message, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}

	msg, err := s.messages.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if msg.State == models.MessageStateSent {
		return nil, fmt.Errorf("message %d is already sent: %w", id, ErrInvalidState)
	}

	msg.Subject = subject
	msg.Body = body
	if scheduledTime != nil && scheduledTime.After(s.now()) {
		msg.ScheduledTime = *scheduledTime
	}

	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}

	s.invalidateLists(ctx)
	s.log.Info().Int64("message_id", id).Msg("message updated")
	return msg, nil
}

// Cancel transitions scheduled -> cancelled with a conditional update, so
// it can never race a dispatch already holding the row: once dispatch has
// begun the state guard no longer matches and the cancel is rejected.
func (s *MessageService) Cancel(ctx context.Context, id int64) error {
	ok, err := s.messages.UpdateStateIf(
		ctx, id,
		[]string{models.MessageStateScheduled},
		models.MessageStateCancelled,
	)
	if err != nil {
		return fmt.Errorf("cancel message: %w", err)
	}

	if !ok {
		msg, err := s.messages.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("message %d is %s: %w", id, msg.State, ErrInvalidState)
	}

	s.invalidateLists(ctx)
	s.log.Info().Int64("message_id", id).Msg("message cancelled")
	return nil
}

func (s *MessageService) Delete(ctx context.Context, id int64) error {
	if err := s.messages.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidateLists(ctx)
	s.log.Info().Int64("message_id", id).Msg("message deleted")
	return nil
}

func (s *MessageService) Deliveries(ctx context.Context, id int64) ([]*models.DeliveryRecord, error) {
	if _, err := s.messages.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.deliveries.ListByMessage(ctx, id)
}

func (s *MessageService) cachedList(ctx context.Context, key string, load func() ([]*models.Message, error)) ([]*models.Message, error) {
	if s.cache != nil {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var msgs []*models.Message
			if err := json.Unmarshal(b, &msgs); err == nil {
				return msgs, nil
			}
		}
	}

	msgs, err := load()
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if b, err := json.Marshal(msgs); err == nil {
			if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("cache set")
			} else if err := s.cache.SAdd(ctx, cache.MessageKeysSetKey(), key); err == nil {
				_ = s.cache.Expire(ctx, cache.MessageKeysSetKey(), s.cacheTTL)
			}
		}
	}

	return msgs, nil
}

// invalidateLists drops every tracked message-list key. The key set makes
// this possible without a SCAN over the whole cache database.
func (s *MessageService) invalidateLists(ctx context.Context) {
	if s.cache == nil {
		return
	}

	keys, err := s.cache.SMembers(ctx, cache.MessageKeysSetKey())
	if err != nil {
		s.log.Warn().Err(err).Msg("cache list keys")
		return
	}

	keys = append(keys, cache.MessageKeysSetKey())
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Msg("cache invalidate lists")
	}
}
