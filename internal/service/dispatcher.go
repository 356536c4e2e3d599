package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newsletter_service/internal/kafka"
	"newsletter_service/internal/mail"
	"newsletter_service/internal/metrics"
	"newsletter_service/internal/models"
	"newsletter_service/internal/repository"
)

// MessageStore is the slice of the message repository the dispatch core
// needs. Narrow on purpose: tests run against in-memory fakes.
type MessageStore interface {
	Get(ctx context.Context, id int64) (*models.Message, error)
	GetDue(ctx context.Context, now time.Time) ([]*models.Message, error)
	ClaimForDispatch(ctx context.Context, id int64) (*models.Message, repository.DispatchClaim, error)
	UpdateStateIf(ctx context.Context, id int64, from []string, to string) (bool, error)
}

type TopicStore interface {
	Get(ctx context.Context, id int64) (*models.Topic, error)
}

type SubscriberDirectory interface {
	GetActiveByTopic(ctx context.Context, topicID int64) ([]*models.Subscriber, error)
}

type DeliveryLog interface {
	Append(ctx context.Context, rec *models.DeliveryRecord) error
}

type EventPublisher interface {
	PublishDispatchResult(ev *kafka.DispatchEvent) error
}

type DispatchOutcome struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// Dispatcher delivers one due newsletter to every active subscriber of its
// topic and finalizes the message state. Per-recipient failures are recorded
// in the delivery log and never abort the loop; only an orchestration
// failure (topic or subscriber lookup) fails the message as a whole.
type Dispatcher struct {
	messages    MessageStore
	topics      TopicStore
	subscribers SubscriberDirectory
	deliveries  DeliveryLog
	mailer      mail.Mailer
	events      EventPublisher // optional
	sendTimeout time.Duration
	log         zerolog.Logger
}

func NewDispatcher(
	messages MessageStore,
	topics TopicStore,
	subscribers SubscriberDirectory,
	deliveries DeliveryLog,
	mailer mail.Mailer,
	events EventPublisher,
	sendTimeout time.Duration,
	log zerolog.Logger,
) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}

	return &Dispatcher{
		messages:    messages,
		topics:      topics,
		subscribers: subscribers,
		deliveries:  deliveries,
		mailer:      mailer,
		events:      events,
		sendTimeout: sendTimeout,
		log:         log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch claims the message row, fans out to active subscribers and
// finalizes the state. The row lock held by the claim makes the state check
// race-free: a concurrent dispatch or cancel blocks until the claim is
// finalized and then sees the terminal state.
func (d *Dispatcher) Dispatch(ctx context.Context, messageID int64) (out *DispatchOutcome, err error) {
	msg, claim, err := d.messages.ClaimForDispatch(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if msg.State == models.MessageStateSent || msg.State == models.MessageStateCancelled {
		_ = claim.Release(ctx)
		return nil, fmt.Errorf("message %d is %s: %w", messageID, msg.State, ErrInvalidState)
	}

	finalized := false
	defer func() {
		if r := recover(); r != nil {
			if !finalized {
				if cerr := claim.Complete(ctx, models.MessageStateFailed); cerr != nil {
					d.log.Error().Err(cerr).Int64("message_id", messageID).Msg("finalize after panic")
				}
			}
			metrics.IncDispatchFailed()
			out = nil
			err = fmt.Errorf("dispatch of message %d panicked: %v", messageID, r)
			return
		}
		if !finalized {
			_ = claim.Release(ctx)
		}
	}()

	metrics.ObserveDispatchLag(time.Since(msg.ScheduledTime).Seconds())

	topic, err := d.topics.Get(ctx, msg.TopicID)
	if err != nil {
		finalized = true
		if cerr := claim.Complete(ctx, models.MessageStateFailed); cerr != nil {
			d.log.Error().Err(cerr).Int64("message_id", messageID).Msg("finalize after topic lookup failure")
		}
		metrics.IncDispatchFailed()
		return nil, fmt.Errorf("resolve topic %d for message %d: %w", msg.TopicID, messageID, err)
	}

	subs, err := d.subscribers.GetActiveByTopic(ctx, msg.TopicID)
	if err != nil {
		finalized = true
		if cerr := claim.Complete(ctx, models.MessageStateFailed); cerr != nil {
			d.log.Error().Err(cerr).Int64("message_id", messageID).Msg("finalize after subscriber lookup failure")
		}
		metrics.IncDispatchFailed()
		return nil, fmt.Errorf("load subscribers for message %d: %w", messageID, err)
	}

	out = &DispatchOutcome{}

	if len(subs) == 0 {
		// No audience is not a failure; the message is done.
		finalized = true
		if err := claim.Complete(ctx, models.MessageStateSent); err != nil {
			return out, fmt.Errorf("finalize message %d: %w", messageID, err)
		}
		metrics.IncDispatched()
		d.publishResult(msg, out)
		d.log.Info().Int64("message_id", messageID).Msg("dispatched with no active subscribers")
		return out, nil
	}

	d.log.Info().
		Int64("message_id", messageID).
		Str("topic", topic.Name).
		Int("subscribers", len(subs)).
		Msg("dispatch started")

	for _, sub := range subs {
		d.deliverOne(ctx, msg, topic, sub, out)
	}

	finalized = true
	if err := claim.Complete(ctx, models.MessageStateSent); err != nil {
		return out, fmt.Errorf("finalize message %d: %w", messageID, err)
	}

	metrics.IncDispatched()
	d.publishResult(msg, out)

	d.log.Info().
		Int64("message_id", messageID).
		Int("success", out.SuccessCount).
		Int("failed", out.FailureCount).
		Msg("dispatch finished")

	return out, nil
}

// deliverOne sends to a single subscriber and appends exactly one delivery
// record. Send errors stay inside this recipient boundary.
func (d *Dispatcher) deliverOne(ctx context.Context, msg *models.Message, topic *models.Topic, sub *models.Subscriber, out *DispatchOutcome) {
	body := mail.FormatBody(sub.Name, msg.Body, topic.Name)

	start := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	sendErr := d.mailer.Send(sendCtx, sub.Email, msg.Subject, body)
	cancel()
	metrics.ObserveDeliveryDuration(time.Since(start))

	rec := &models.DeliveryRecord{
		MessageID:      msg.ID,
		SubscriberID:   sub.ID,
		RecipientEmail: sub.Email,
		Outcome:        models.DeliveryOutcomeSuccess,
	}

	if sendErr != nil {
		detail := sendErr.Error()
		rec.Outcome = models.DeliveryOutcomeFailed
		rec.ErrorDetail = &detail
		out.FailureCount++
		metrics.IncDelivery(models.DeliveryOutcomeFailed)
		d.log.Warn().
			Err(sendErr).
			Int64("message_id", msg.ID).
			Int64("subscriber_id", sub.ID).
			Msg("delivery failed")
	} else {
		out.SuccessCount++
		metrics.IncDelivery(models.DeliveryOutcomeSuccess)
	}

	if err := d.deliveries.Append(ctx, rec); err != nil {
		d.log.Error().
			Err(err).
			Int64("message_id", msg.ID).
			Int64("subscriber_id", sub.ID).
			Msg("append delivery record")
	}
}

func (d *Dispatcher) publishResult(msg *models.Message, out *DispatchOutcome) {
	if d.events == nil {
		return
	}

	ev := &kafka.DispatchEvent{
		MessageID:    msg.ID,
		TopicID:      msg.TopicID,
		State:        models.MessageStateSent,
		SuccessCount: out.SuccessCount,
		FailureCount: out.FailureCount,
		CompletedAt:  time.Now().UTC(),
	}
	if err := d.events.PublishDispatchResult(ev); err != nil {
		d.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("publish dispatch event")
	}
}
