package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type GateConfig struct {
	JournalSecret string
	CommentSecret string
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

// Gate checks the two shared secrets and records the resulting flags.
type Gate struct {
	store       Store
	broker      *Broker
	logger      *zap.SugaredLogger
	journalHash []byte
	commentHash []byte
	now         func() time.Time
}

func NewGate(store Store, broker *Broker, cfg GateConfig, logger *zap.SugaredLogger) (*Gate, error) {
	if cfg.JournalSecret == "" || cfg.CommentSecret == "" {
		return nil, fmt.Errorf("both journal and comment secrets must be configured")
	}
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	journalHash, err := bcrypt.GenerateFromPassword([]byte(cfg.JournalSecret), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash journal secret: %w", err)
	}
	commentHash, err := bcrypt.GenerateFromPassword([]byte(cfg.CommentSecret), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash comment secret: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if broker == nil {
		broker = NewBroker(0)
	}
	return &Gate{
		store:       store,
		broker:      broker,
		logger:      logger,
		journalHash: journalHash,
		commentHash: commentHash,
		now:         time.Now,
	}, nil
}

func (g *Gate) Broker() *Broker { return g.broker }

func (g *Gate) Get(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrSessionRequired
	}
	return g.store.Get(ctx, id)
}

// UnlockJournal grants owner rights to the session.
func (g *Gate) UnlockJournal(ctx context.Context, id, secret string) (Session, error) {
	if err := bcrypt.CompareHashAndPassword(g.journalHash, []byte(secret)); err != nil {
		g.logger.Infow("journal unlock rejected", "session_id", id)
		return Session{}, ErrIncorrectPassword
	}
	s, err := g.update(ctx, id, func(s *Session) { s.JournalUnlocked = true })
	if err != nil {
		return s, err
	}
	g.broker.Publish(AuthEvent{SessionID: id, Kind: JournalUnlocked, DisplayName: s.DisplayName})
	return s, nil
}

// UnlockComments checks the comment secret and stores the commenter's name.
// The name is checked first so a blank form fails without touching the secret.
func (g *Gate) UnlockComments(ctx context.Context, id, name, secret string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, ErrNameRequired
	}
	if err := bcrypt.CompareHashAndPassword(g.commentHash, []byte(secret)); err != nil {
		g.logger.Infow("comment unlock rejected", "session_id", id)
		return Session{}, ErrIncorrectPassword
	}
	s, err := g.update(ctx, id, func(s *Session) {
		s.CommentsUnlocked = true
		s.DisplayName = name
	})
	if err != nil {
		return s, err
	}
	g.broker.Publish(AuthEvent{SessionID: id, Kind: CommentsUnlocked, DisplayName: name})
	return s, nil
}

func (g *Gate) SetDisplayName(ctx context.Context, id, name string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, ErrNameRequired
	}
	s, err := g.update(ctx, id, func(s *Session) { s.DisplayName = name })
	if err != nil {
		return s, err
	}
	g.broker.Publish(AuthEvent{SessionID: id, Kind: NameChanged, DisplayName: name})
	return s, nil
}

func (g *Gate) update(ctx context.Context, id string, mutate func(*Session)) (Session, error) {
	if id == "" {
		return Session{}, ErrSessionRequired
	}
	s, err := g.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	mutate(&s)
	s.ID = id
	s.UpdatedAt = g.now()
	if err := g.store.Save(ctx, s); err != nil {
		return Session{}, err
	}
	g.logger.Infow("session updated",
		"session_id", id,
		"journal_unlocked", s.JournalUnlocked,
		"comments_unlocked", s.CommentsUnlocked,
	)
	return s, nil
}
