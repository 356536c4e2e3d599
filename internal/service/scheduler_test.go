package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter_service/internal/models"
	"newsletter_service/internal/repository"
)

func newSchedulerFixture(msgs ...*models.Message) (*Scheduler, *dispatchFixture) {
	f := newDispatchFixture(msgs...)
	s := NewScheduler(f.dispatcher, f.store, "", zerolog.Nop())
	return s, f
}

func TestTickDispatchesDueMessages(t *testing.T) {
	m1 := scheduledMessage(1, 1)
	m2 := scheduledMessage(2, 1)
	future := scheduledMessage(3, 1)
	future.ScheduledTime = time.Now().Add(time.Hour)

	s, f := newSchedulerFixture(m1, m2, future)
	f.subs.byTopic[1] = []*models.Subscriber{subscriber(1, "a@example.com", 1)}

	s.Tick(context.Background())

	assert.Equal(t, models.MessageStateSent, f.store.state(1))
	assert.Equal(t, models.MessageStateSent, f.store.state(2))
	assert.Equal(t, models.MessageStateScheduled, f.store.state(3))
	assert.Len(t, f.mailer.sent, 2)
}

func TestTickIsolatesFailingMessage(t *testing.T) {
	// Message 1 points at a topic that does not exist, message 2 is healthy.
	m1 := scheduledMessage(1, 7)
	m2 := scheduledMessage(2, 1)

	s, f := newSchedulerFixture(m1, m2)
	f.subs.byTopic[1] = []*models.Subscriber{subscriber(1, "a@example.com", 1)}

	s.Tick(context.Background())

	assert.Equal(t, models.MessageStateFailed, f.store.state(1))
	assert.Equal(t, models.MessageStateSent, f.store.state(2))
	assert.Len(t, f.mailer.sent, 1)
}

func TestTickForceFailsWhenClaimFails(t *testing.T) {
	m := scheduledMessage(1, 1)
	s, f := newSchedulerFixture(m)
	f.store.claimErr = errors.New("deadlock detected")

	s.Tick(context.Background())

	// The dispatch never ran, so the fallback pushes the row to failed.
	assert.Equal(t, models.MessageStateFailed, f.store.state(1))
}

func TestTickSkippedWhileRunning(t *testing.T) {
	m := scheduledMessage(1, 1)
	s, f := newSchedulerFixture(m)

	s.running.Store(true)
	s.Tick(context.Background())

	assert.Equal(t, models.MessageStateScheduled, f.store.state(1))
	assert.Empty(t, f.mailer.sent)
}

func TestTickSelectErrorAborts(t *testing.T) {
	m := scheduledMessage(1, 1)
	s, f := newSchedulerFixture(m)
	f.store.dueErr = errors.New("connection reset")

	s.Tick(context.Background())

	assert.Equal(t, models.MessageStateScheduled, f.store.state(1))
	assert.False(t, s.running.Load())
}

func TestSendNow(t *testing.T) {
	// Scheduled for later today: the manual trigger ignores the due time.
	m := scheduledMessage(1, 1)
	m.ScheduledTime = time.Now().Add(time.Hour)

	s, f := newSchedulerFixture(m)
	f.subs.byTopic[1] = []*models.Subscriber{
		subscriber(1, "a@example.com", 1),
		subscriber(2, "b@example.com", 1),
	}

	out, err := s.SendNow(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, models.MessageStateSent, f.store.state(1))
}

func TestSendNowUnknownMessage(t *testing.T) {
	s, _ := newSchedulerFixture()

	out, err := s.SendNow(context.Background(), 42)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendNowRejectsTerminalStates(t *testing.T) {
	for _, state := range []string{models.MessageStateSent, models.MessageStateCancelled} {
		t.Run(state, func(t *testing.T) {
			m := scheduledMessage(1, 1)
			m.State = state
			s, f := newSchedulerFixture(m)

			out, err := s.SendNow(context.Background(), 1)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrInvalidState)
			assert.Empty(t, f.mailer.sent)
		})
	}
}

func TestSendNowRetriesFailedMessage(t *testing.T) {
	m := scheduledMessage(1, 1)
	m.State = models.MessageStateFailed

	s, f := newSchedulerFixture(m)
	f.subs.byTopic[1] = []*models.Subscriber{subscriber(1, "a@example.com", 1)}

	out, err := s.SendNow(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, out.SuccessCount)
	assert.Equal(t, models.MessageStateSent, f.store.state(1))
}
