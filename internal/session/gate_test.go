package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"io.winapps.triptracker/internal/session"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, id string) (session.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(session.Session), args.Error(1)
}

func (m *MockStore) Save(ctx context.Context, s session.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

type GateTestSuite struct {
	suite.Suite
	store  *session.MemoryStore
	broker *session.Broker
	gate   *session.Gate
}

func (s *GateTestSuite) SetupTest() {
	s.store = session.NewMemoryStore()
	s.broker = session.NewBroker(4)
	gate, err := session.NewGate(s.store, s.broker, session.GateConfig{
		JournalSecret: "jordan2024",
		CommentSecret: "trentharry2026",
		Cost:          bcrypt.MinCost,
	}, nil)
	s.Require().NoError(err)
	s.gate = gate
}

func (s *GateTestSuite) TestUnlockJournal_Success() {
	ctx := context.Background()
	events, unsubscribe := s.broker.Subscribe()
	defer unsubscribe()

	got, err := s.gate.UnlockJournal(ctx, "dev-1", "jordan2024")
	s.Require().NoError(err)
	s.True(got.JournalUnlocked)
	s.False(got.CommentsUnlocked)
	s.True(got.Actor().IsOwner)
	s.True(got.Actor().CanComment)

	stored, err := s.store.Get(ctx, "dev-1")
	s.Require().NoError(err)
	s.True(stored.JournalUnlocked)

	select {
	case ev := <-events:
		s.Equal(session.AuthEvent{SessionID: "dev-1", Kind: session.JournalUnlocked}, ev)
	case <-time.After(time.Second):
		s.Fail("no auth event published")
	}
}

func (s *GateTestSuite) TestUnlockJournal_WrongSecret() {
	_, err := s.gate.UnlockJournal(context.Background(), "dev-1", "trentharry2026")
	s.ErrorIs(err, session.ErrIncorrectPassword)

	stored, _ := s.store.Get(context.Background(), "dev-1")
	s.False(stored.JournalUnlocked)
}

func (s *GateTestSuite) TestUnlockComments_StoresName() {
	got, err := s.gate.UnlockComments(context.Background(), "dev-2", "  Grandma  ", "trentharry2026")
	s.Require().NoError(err)
	s.True(got.CommentsUnlocked)
	s.False(got.JournalUnlocked)
	s.Equal("Grandma", got.DisplayName)

	actor := got.Actor()
	s.False(actor.IsOwner)
	s.True(actor.CanComment)
	s.True(actor.Is("grandma"))
}

func (s *GateTestSuite) TestUnlockComments_Validation() {
	_, err := s.gate.UnlockComments(context.Background(), "dev-2", "   ", "trentharry2026")
	s.ErrorIs(err, session.ErrNameRequired)

	_, err = s.gate.UnlockComments(context.Background(), "dev-2", "Grandma", "jordan2024")
	s.ErrorIs(err, session.ErrIncorrectPassword)
}

func (s *GateTestSuite) TestSetDisplayName() {
	ctx := context.Background()
	_, err := s.gate.UnlockJournal(ctx, "dev-3", "jordan2024")
	s.Require().NoError(err)

	got, err := s.gate.SetDisplayName(ctx, "dev-3", "Harry")
	s.Require().NoError(err)
	s.True(got.JournalUnlocked, "renaming keeps the unlock flags")
	s.Equal("Harry", got.DisplayName)

	_, err = s.gate.SetDisplayName(ctx, "dev-3", "")
	s.ErrorIs(err, session.ErrNameRequired)
}

func (s *GateTestSuite) TestMissingSessionID() {
	_, err := s.gate.UnlockJournal(context.Background(), "", "jordan2024")
	s.ErrorIs(err, session.ErrSessionRequired)
}

func TestGateTestSuite(t *testing.T) {
	suite.Run(t, new(GateTestSuite))
}

func TestNewGate_RequiresBothSecrets(t *testing.T) {
	_, err := session.NewGate(session.NewMemoryStore(), nil, session.GateConfig{JournalSecret: "x"}, nil)
	assert.Error(t, err)
}

func TestGate_SaveFailureIsReturned(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "dev-1").Return(session.Session{ID: "dev-1"}, nil)
	store.On("Save", mock.Anything, mock.MatchedBy(func(s session.Session) bool {
		return s.ID == "dev-1" && s.JournalUnlocked
	})).Return(errors.New("redis down"))

	gate, err := session.NewGate(store, nil, session.GateConfig{
		JournalSecret: "a",
		CommentSecret: "b",
		Cost:          bcrypt.MinCost,
	}, nil)
	require.NoError(t, err)

	_, err = gate.UnlockJournal(context.Background(), "dev-1", "a")
	assert.EqualError(t, err, "redis down")
	store.AssertExpectations(t)
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := session.NewBroker(1)
	events, unsubscribe := b.Subscribe()

	b.Publish(session.AuthEvent{SessionID: "a", Kind: session.NameChanged})
	// Buffer is full; this one is dropped instead of blocking.
	b.Publish(session.AuthEvent{SessionID: "b", Kind: session.NameChanged})

	unsubscribe()
	unsubscribe()

	var got []string
	for ev := range events {
		got = append(got, ev.SessionID)
	}
	assert.Equal(t, []string{"a"}, got)
}
