// Package comments is the comment service over the comments Entity Cache.
package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"io.winapps.triptracker/internal/cache"
	journal "io.winapps.triptracker/internal/models/journal"
	"io.winapps.triptracker/internal/session"
	"io.winapps.triptracker/internal/store"
)

var (
	ErrNotFound     = errors.New("comment not found")
	ErrForbidden    = errors.New("not allowed to change this comment")
	ErrLocked       = errors.New("commenting is locked for this session")
	ErrNameRequired = errors.New("a display name is required to comment")
	ErrEmptyComment = errors.New("comment is empty")
	ErrNoteRequired = errors.New("note id is required")
)

func Adapter() cache.JSONAdapter[journal.Comment] {
	return cache.JSONAdapter[journal.Comment]{
		GetID:        func(c journal.Comment) string { return c.ID },
		SetID:        func(c *journal.Comment, id string) { c.ID = id },
		SetCreatedAt: func(c *journal.Comment, at time.Time) { c.CreatedAt = at },
		Normalize: func(c *journal.Comment, doc store.Document) {
			if c.CreatedAt.IsZero() {
				c.CreatedAt = doc.CreateTime
			}
		},
	}
}

// NewCache builds the comments cache, oldest first.
func NewCache(st store.Store, cfg cache.Config) *cache.Cache[journal.Comment] {
	cfg.Collection = store.Comments
	cfg.Order = store.ByCreatedAt(store.Asc)
	return cache.New[journal.Comment](st, Adapter(), cfg)
}

type Service struct {
	cache  *cache.Cache[journal.Comment]
	logger *zap.SugaredLogger
}

func NewService(c *cache.Cache[journal.Comment], logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{cache: c, logger: logger}
}

func (s *Service) Cache() *cache.Cache[journal.Comment] { return s.cache }

// Add posts a comment under the actor's display name. The parent note is not
// checked; comments on deleted notes are kept.
func (s *Service) Add(ctx context.Context, actor session.Actor, noteID, content string) (journal.Comment, cache.WriteResult, error) {
	if !actor.CanComment {
		return journal.Comment{}, cache.WriteFailed, ErrLocked
	}
	if actor.Name == "" {
		return journal.Comment{}, cache.WriteFailed, ErrNameRequired
	}
	if strings.TrimSpace(noteID) == "" {
		return journal.Comment{}, cache.WriteFailed, ErrNoteRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return journal.Comment{}, cache.WriteFailed, ErrEmptyComment
	}

	comment, result, err := s.cache.Add(ctx, journal.Comment{
		NoteID:  noteID,
		Author:  actor.Name,
		Content: content,
	})
	if err != nil {
		return comment, result, fmt.Errorf("failed to add comment: %w", err)
	}
	s.logger.Infow("comment added", "id", comment.ID, "note_id", noteID, "result", result.String())
	return comment, result, nil
}

func (s *Service) authorize(actor session.Actor, id string) error {
	comment, ok := s.cache.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !actor.IsOwner && !actor.Is(comment.Author) {
		return ErrForbidden
	}
	return nil
}

func (s *Service) Update(ctx context.Context, actor session.Actor, id, content string) (cache.WriteResult, error) {
	if err := s.authorize(actor, id); err != nil {
		return cache.WriteFailed, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return cache.WriteFailed, ErrEmptyComment
	}
	result, err := s.cache.Update(ctx, id, cache.Patch{"content": content})
	if errors.Is(err, cache.ErrNotFound) {
		return result, ErrNotFound
	}
	return result, err
}

func (s *Service) Delete(ctx context.Context, actor session.Actor, id string) (cache.WriteResult, error) {
	if err := s.authorize(actor, id); err != nil {
		return cache.WriteFailed, err
	}
	result, err := s.cache.Delete(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return result, ErrNotFound
	}
	if err == nil {
		s.logger.Infow("comment deleted", "id", id, "result", result.String())
	}
	return result, err
}

// ForNote returns a note's comments, oldest first.
func (s *Service) ForNote(noteID string) []journal.Comment {
	return s.cache.Find(func(c journal.Comment) bool { return c.NoteID == noteID })
}

func (s *Service) CountForNote(noteID string) int {
	return len(s.ForNote(noteID))
}

// Counts maps every note id with comments to its comment count.
func (s *Service) Counts() map[string]int {
	counts := map[string]int{}
	for _, c := range s.cache.Items() {
		counts[c.NoteID]++
	}
	return counts
}
