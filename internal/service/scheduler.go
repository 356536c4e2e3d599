package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"newsletter_service/internal/metrics"
	"newsletter_service/internal/models"
)

// Scheduler is the time-driven entry point. Each tick is a complete unit of
// work: select due messages, dispatch each, carry nothing over. An atomic
// in-progress guard makes a tick that fires while the previous one is still
// running a no-op.
type Scheduler struct {
	dispatcher *Dispatcher
	messages   MessageStore
	cronSpec   string
	cron       *cron.Cron
	running    atomic.Bool
	now        func() time.Time
	log        zerolog.Logger
}

func NewScheduler(dispatcher *Dispatcher, messages MessageStore, cronSpec string, log zerolog.Logger) *Scheduler {
	if cronSpec == "" {
		cronSpec = "* * * * *"
	}

	return &Scheduler{
		dispatcher: dispatcher,
		messages:   messages,
		cronSpec:   cronSpec,
		now:        time.Now,
		log:        log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.cronSpec, func() {
		s.Tick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("register cron entry %q: %w", s.cronSpec, err)
	}

	s.cron = c
	c.Start()
	s.log.Info().Str("spec", s.cronSpec).Msg("scheduler started")
	return nil
}

// Stop halts the cron timer and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// Tick dispatches every due message. One message's failure never stops the
// batch: the error is logged, the message is forced to failed if it is
// somehow still scheduled, and the loop continues.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug().Msg("tick skipped, previous tick still running")
		return
	}
	defer s.running.Store(false)

	now := s.now()
	due, err := s.messages.GetDue(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("select due messages")
		return
	}

	metrics.SetDueCount(len(due))
	if len(due) == 0 {
		return
	}

	s.log.Info().Int("due", len(due)).Time("now", now).Msg("tick started")

	for _, msg := range due {
		out, err := s.dispatcher.Dispatch(ctx, msg.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("message_id", msg.ID).Msg("dispatch failed")
			s.forceFail(ctx, msg.ID)
			continue
		}
		s.log.Info().
			Int64("message_id", msg.ID).
			Int("success", out.SuccessCount).
			Int("failed", out.FailureCount).
			Msg("message dispatched")
	}

	s.log.Info().Int("due", len(due)).Msg("tick finished")
}

// forceFail is belt-and-suspenders with the engine's own failure handling:
// the conditional update only fires if the message is somehow still
// scheduled, so an already-finalized message is untouched.
func (s *Scheduler) forceFail(ctx context.Context, messageID int64) {
	forced, err := s.messages.UpdateStateIf(
		ctx, messageID,
		[]string{models.MessageStateScheduled},
		models.MessageStateFailed,
	)
	if err != nil {
		s.log.Error().Err(err).Int64("message_id", messageID).Msg("force fail message")
		return
	}
	if forced {
		s.log.Warn().Int64("message_id", messageID).Msg("message forced to failed state")
	}
}

// SendNow is the manual trigger: it bypasses the due-time check but not the
// state rules. Sent and cancelled messages are rejected; a failed message
// may be re-dispatched, appending fresh delivery records.
func (s *Scheduler) SendNow(ctx context.Context, messageID int64) (*DispatchOutcome, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if msg.State == models.MessageStateSent || msg.State == models.MessageStateCancelled {
		return nil, fmt.Errorf("message %d is %s: %w", messageID, msg.State, ErrInvalidState)
	}

	s.log.Info().Int64("message_id", messageID).Msg("manual send triggered")
	return s.dispatcher.Dispatch(ctx, messageID)
}
