package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter_service/internal/models"
	"newsletter_service/internal/repository"
)

// fakeMessageStore keeps messages in a map and hands out claims that write
// the terminal state back on Complete, mirroring the row-lock repository.
type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[int64]*models.Message
	claimErr error
	dueErr   error
}

func newFakeMessageStore(msgs ...*models.Message) *fakeMessageStore {
	s := &fakeMessageStore{messages: make(map[int64]*models.Message)}
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	return s
}

func (s *fakeMessageStore) Get(_ context.Context, id int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeMessageStore) GetDue(_ context.Context, now time.Time) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	var due []*models.Message
	for _, m := range s.messages {
		if m.State == models.MessageStateScheduled && !m.ScheduledTime.After(now) {
			cp := *m
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (s *fakeMessageStore) ClaimForDispatch(_ context.Context, id int64) (*models.Message, repository.DispatchClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, nil, s.claimErr
	}
	m, ok := s.messages[id]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, &fakeClaim{store: s, id: id}, nil
}

func (s *fakeMessageStore) UpdateStateIf(_ context.Context, id int64, from []string, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if m.State == f {
			m.State = to
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeMessageStore) state(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id].State
}

type fakeClaim struct {
	store     *fakeMessageStore
	id        int64
	completed string
	released  bool
}

func (c *fakeClaim) Complete(_ context.Context, state string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.completed = state
	c.store.messages[c.id].State = state
	now := time.Now()
	c.store.messages[c.id].SentAt = &now
	return nil
}

func (c *fakeClaim) Release(_ context.Context) error {
	c.released = true
	return nil
}

type fakeTopicStore struct {
	topics map[int64]*models.Topic
	err    error
}

func (s *fakeTopicStore) Get(_ context.Context, id int64) (*models.Topic, error) {
	if s.err != nil {
		return nil, s.err
	}
	t, ok := s.topics[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

type fakeSubscriberDirectory struct {
	byTopic map[int64][]*models.Subscriber
	err     error
}

func (s *fakeSubscriberDirectory) GetActiveByTopic(_ context.Context, topicID int64) ([]*models.Subscriber, error) {
	if s.err != nil {
		return nil, s.err
	}
	var active []*models.Subscriber
	for _, sub := range s.byTopic[topicID] {
		if sub.Active {
			active = append(active, sub)
		}
	}
	return active, nil
}

type fakeDeliveryLog struct {
	mu      sync.Mutex
	records []*models.DeliveryRecord
	err     error
}

func (l *fakeDeliveryLog) Append(_ context.Context, rec *models.DeliveryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, rec)
	return nil
}

// fakeMailer records every send and fails addresses listed in failAddrs.
type fakeMailer struct {
	mu        sync.Mutex
	sent      []string
	failAddrs map[string]bool
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAddrs[to] {
		return fmt.Errorf("smtp: mailbox %s unavailable", to)
	}
	m.sent = append(m.sent, to)
	return nil
}

func scheduledMessage(id, topicID int64) *models.Message {
	return &models.Message{
		ID:            id,
		Subject:       "Weekly digest",
		Body:          "Fresh releases inside.",
		TopicID:       topicID,
		ScheduledTime: time.Now().Add(-time.Minute),
		State:         models.MessageStateScheduled,
	}
}

func subscriber(id int64, email string, topicID int64) *models.Subscriber {
	return &models.Subscriber{ID: id, Email: email, Name: "Sub " + email, TopicID: topicID, Active: true}
}

type dispatchFixture struct {
	store      *fakeMessageStore
	topics     *fakeTopicStore
	subs       *fakeSubscriberDirectory
	deliveries *fakeDeliveryLog
	mailer     *fakeMailer
	dispatcher *Dispatcher
}

func newDispatchFixture(msgs ...*models.Message) *dispatchFixture {
	f := &dispatchFixture{
		store:      newFakeMessageStore(msgs...),
		topics:     &fakeTopicStore{topics: map[int64]*models.Topic{1: {ID: 1, Name: "golang"}}},
		subs:       &fakeSubscriberDirectory{byTopic: map[int64][]*models.Subscriber{}},
		deliveries: &fakeDeliveryLog{},
		mailer:     &fakeMailer{failAddrs: map[string]bool{}},
	}
	f.dispatcher = NewDispatcher(f.store, f.topics, f.subs, f.deliveries, f.mailer, nil, time.Second, zerolog.Nop())
	return f
}

func TestDispatchFanOut(t *testing.T) {
	f := newDispatchFixture(scheduledMessage(10, 1))
	f.subs.byTopic[1] = []*models.Subscriber{
		subscriber(1, "a@example.com", 1),
		subscriber(2, "b@example.com", 1),
		subscriber(3, "c@example.com", 1),
	}

	out, err := f.dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 3, out.SuccessCount)
	assert.Equal(t, 0, out.FailureCount)
	assert.Equal(t, models.MessageStateSent, f.store.state(10))
	assert.Len(t, f.deliveries.records, 3)
	for _, rec := range f.deliveries.records {
		assert.Equal(t, models.DeliveryOutcomeSuccess, rec.Outcome)
		assert.Nil(t, rec.ErrorDetail)
	}
}

func TestDispatchPartialFailureStillSent(t *testing.T) {
	f := newDispatchFixture(scheduledMessage(10, 1))
	f.subs.byTopic[1] = []*models.Subscriber{
		subscriber(1, "a@example.com", 1),
		subscriber(2, "bad@example.com", 1),
		subscriber(3, "c@example.com", 1),
	}
	f.mailer.failAddrs["bad@example.com"] = true

	out, err := f.dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, 1, out.FailureCount)
	// Recipient failures never fail the message.
	assert.Equal(t, models.MessageStateSent, f.store.state(10))

	require.Len(t, f.deliveries.records, 3)
	var failed *models.DeliveryRecord
	for _, rec := range f.deliveries.records {
		if rec.Outcome == models.DeliveryOutcomeFailed {
			failed = rec
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "bad@example.com", failed.RecipientEmail)
	require.NotNil(t, failed.ErrorDetail)
	assert.Contains(t, *failed.ErrorDetail, "mailbox bad@example.com unavailable")
}

func TestDispatchSkipsInactiveSubscribers(t *testing.T) {
	f := newDispatchFixture(scheduledMessage(10, 1))
	unsubscribed := subscriber(2, "gone@example.com", 1)
	unsubscribed.Active = false
	f.subs.byTopic[1] = []*models.Subscriber{
		subscriber(1, "a@example.com", 1),
		unsubscribed,
	}

	out, err := f.dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, out.SuccessCount)
	assert.Equal(t, []string{"a@example.com"}, f.mailer.sent)
	require.Len(t, f.deliveries.records, 1)
	assert.Equal(t, "a@example.com", f.deliveries.records[0].RecipientEmail)
}

func TestDispatchNoActiveSubscribers(t *testing.T) {
	f := newDispatchFixture(scheduledMessage(10, 1))

	out, err := f.dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 0, out.SuccessCount)
	assert.Equal(t, 0, out.FailureCount)
	assert.Equal(t, models.MessageStateSent, f.store.state(10))
	assert.Empty(t, f.deliveries.records)
}

func TestDispatchRejectsTerminalStates(t *testing.T) {
	for _, state := range []string{models.MessageStateSent, models.MessageStateCancelled} {
		t.Run(state, func(t *testing.T) {
			msg := scheduledMessage(10, 1)
			msg.State = state
			f := newDispatchFixture(msg)

			out, err := f.dispatcher.Dispatch(context.Background(), 10)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrInvalidState)
			assert.Equal(t, state, f.store.state(10))
			assert.Empty(t, f.mailer.sent)
		})
	}
}

func TestDispatchFailedMessageRetries(t *testing.T) {
	msg := scheduledMessage(10, 1)
	msg.State = models.MessageStateFailed
	f := newDispatchFixture(msg)
	f.subs.byTopic[1] = []*models.Subscriber{subscriber(1, "a@example.com", 1)}

	out, err := f.dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, out.SuccessCount)
	assert.Equal(t, models.MessageStateSent, f.store.state(10))
	assert.Len(t, f.deliveries.records, 1)
}

func TestDispatchTopicLookupFailure(t *testing.T) {
	f := newDispatchFixture(scheduledMessage(10, 2))

	out, err := f.dispatcher.Dispatch(context.Background(), 10)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, models.MessageStateFailed, f.store.state(10))
	assert.Empty(t, f.mailer.sent)
}

func TestDispatchSubscriberLookupFailure(t *testing.T) {
	f := newDispatchFixture(scheduledMessage(10, 1))
	f.subs.err = errors.New("connection refused")

	out, err := f.dispatcher.Dispatch(context.Background(), 10)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Equal(t, models.MessageStateFailed, f.store.state(10))
}

func TestDispatchUnknownMessage(t *testing.T) {
	f := newDispatchFixture()

	out, err := f.dispatcher.Dispatch(context.Background(), 99)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDispatchLedgerAppendFailureDoesNotAbort(t *testing.T) {
	f := newDispatchFixture(scheduledMessage(10, 1))
	f.subs.byTopic[1] = []*models.Subscriber{
		subscriber(1, "a@example.com", 1),
		subscriber(2, "b@example.com", 1),
	}
	f.deliveries.err = errors.New("ledger down")

	out, err := f.dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, models.MessageStateSent, f.store.state(10))
	assert.Len(t, f.mailer.sent, 2)
}
