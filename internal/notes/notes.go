// Package notes is the journal entry service: validation and permissions in
// front of the notes Entity Cache.
package notes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"io.winapps.triptracker/internal/cache"
	journal "io.winapps.triptracker/internal/models/journal"
	"io.winapps.triptracker/internal/notify"
	"io.winapps.triptracker/internal/session"
	"io.winapps.triptracker/internal/store"
	"io.winapps.triptracker/internal/tripdates"
)

var (
	ErrNotFound      = errors.New("note not found")
	ErrForbidden     = errors.New("not allowed to change this note")
	ErrInvalidAuthor = errors.New("author must be one of the trip authors")
	ErrEmptyNote     = errors.New("a note needs content or at least one photo")
	ErrInvalidDate   = errors.New("date is not a trip date")
)

// Adapter maps journal notes to store documents.
func Adapter() cache.JSONAdapter[journal.Note] {
	return cache.JSONAdapter[journal.Note]{
		GetID:        func(n journal.Note) string { return n.ID },
		SetID:        func(n *journal.Note, id string) { n.ID = id },
		SetCreatedAt: func(n *journal.Note, at time.Time) { n.CreatedAt = at },
		Normalize: func(n *journal.Note, doc store.Document) {
			if n.CreatedAt.IsZero() {
				n.CreatedAt = doc.CreateTime
			}
			if n.Photos == nil {
				n.Photos = []journal.Photo{}
			}
		},
	}
}

// NewCache builds the notes cache, newest first.
func NewCache(st store.Store, cfg cache.Config) *cache.Cache[journal.Note] {
	cfg.Collection = store.Notes
	cfg.Order = store.ByCreatedAt(store.Desc)
	return cache.New[journal.Note](st, Adapter(), cfg)
}

// PhotoRemover deletes stored photo objects.
type PhotoRemover interface {
	Delete(ctx context.Context, path string) error
}

type Options struct {
	// Timezone is recorded on notes whose draft does not carry one.
	Timezone string
	Notifier notify.Notifier
	Photos   PhotoRemover
	Logger   *zap.SugaredLogger
}

type Service struct {
	cache    *cache.Cache[journal.Note]
	timezone string
	notifier notify.Notifier
	photos   PhotoRemover
	logger   *zap.SugaredLogger
}

func NewService(c *cache.Cache[journal.Note], opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Timezone == "" {
		opts.Timezone = "UTC"
	}
	return &Service{
		cache:    c,
		timezone: opts.Timezone,
		notifier: opts.Notifier,
		photos:   opts.Photos,
		logger:   opts.Logger,
	}
}

func (s *Service) Cache() *cache.Cache[journal.Note] { return s.cache }

type Draft struct {
	Author   string
	Content  string
	Date     string
	Location string
	Timezone string
	Photos   []journal.Photo
}

// Add validates the draft and inserts it optimistically.
func (s *Service) Add(ctx context.Context, actor session.Actor, d Draft) (journal.Note, cache.WriteResult, error) {
	if !actor.IsOwner {
		return journal.Note{}, cache.WriteFailed, ErrForbidden
	}
	author, ok := journal.CanonicalAuthor(d.Author)
	if !ok {
		return journal.Note{}, cache.WriteFailed, ErrInvalidAuthor
	}
	content := strings.TrimSpace(d.Content)
	if content == "" && len(d.Photos) == 0 {
		return journal.Note{}, cache.WriteFailed, ErrEmptyNote
	}
	if !tripdates.IsTripDate(d.Date) {
		return journal.Note{}, cache.WriteFailed, ErrInvalidDate
	}
	tz := d.Timezone
	if tz == "" {
		tz = s.timezone
	}
	photos := d.Photos
	if photos == nil {
		photos = []journal.Photo{}
	}

	note, result, err := s.cache.Add(ctx, journal.Note{
		Author:   author,
		Content:  content,
		Date:     d.Date,
		Location: strings.TrimSpace(d.Location),
		Timezone: tz,
		Photos:   photos,
	})
	if err != nil {
		return note, result, fmt.Errorf("failed to add note: %w", err)
	}

	s.logger.Infow("note added", "id", note.ID, "author", author, "date", d.Date, "result", result.String())
	if result != cache.WriteFailed {
		go s.announce(context.WithoutCancel(ctx), note)
	}
	return note, result, nil
}

func (s *Service) announce(ctx context.Context, note journal.Note) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.notifier.Notify(ctx, notify.Message{
		Title: "New journal entry",
		Body:  fmt.Sprintf("%s wrote about %s", note.Author, note.Date),
		Data:  map[string]string{"date": note.Date, "author": note.Author},
	})
	if err != nil {
		s.logger.Warnw("failed to send new entry notification", "id", note.ID, "error", err)
	}
}

// Patch is a partial edit; nil fields are left alone.
type Patch struct {
	Content  *string
	Date     *string
	Location *string
}

func (s *Service) authorize(actor session.Actor, id string) (journal.Note, error) {
	note, ok := s.cache.Get(id)
	if !ok {
		return note, ErrNotFound
	}
	if !actor.IsOwner && !actor.Is(note.Author) {
		return note, ErrForbidden
	}
	return note, nil
}

func (s *Service) Update(ctx context.Context, actor session.Actor, id string, p Patch) (cache.WriteResult, error) {
	note, err := s.authorize(actor, id)
	if err != nil {
		return cache.WriteFailed, err
	}

	patch := cache.Patch{}
	if p.Content != nil {
		content := strings.TrimSpace(*p.Content)
		if content == "" && len(note.Photos) == 0 {
			return cache.WriteFailed, ErrEmptyNote
		}
		patch["content"] = content
	}
	if p.Date != nil {
		if !tripdates.IsTripDate(*p.Date) {
			return cache.WriteFailed, ErrInvalidDate
		}
		patch["date"] = *p.Date
	}
	if p.Location != nil {
		patch["location"] = strings.TrimSpace(*p.Location)
	}
	if len(patch) == 0 {
		return cache.WriteConfirmed, nil
	}

	result, err := s.cache.Update(ctx, id, patch)
	if errors.Is(err, cache.ErrNotFound) {
		return result, ErrNotFound
	}
	if err != nil {
		return result, err
	}
	s.logger.Infow("note updated", "id", id, "fields", len(patch), "result", result.String())
	return result, nil
}

// Delete removes the note, then its photos. Photo cleanup is best effort.
func (s *Service) Delete(ctx context.Context, actor session.Actor, id string) (cache.WriteResult, error) {
	note, err := s.authorize(actor, id)
	if err != nil {
		return cache.WriteFailed, err
	}

	result, err := s.cache.Delete(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return result, ErrNotFound
	}
	if err != nil {
		return result, err
	}

	if s.photos != nil && result != cache.WriteFailed {
		for _, p := range note.Photos {
			if p.Path == "" {
				continue
			}
			if err := s.photos.Delete(ctx, p.Path); err != nil {
				s.logger.Warnw("failed to delete photo", "note_id", id, "path", p.Path, "error", err)
			}
		}
	}
	s.logger.Infow("note deleted", "id", id, "result", result.String())
	return result, nil
}

// ForDate returns the notes for a trip day, newest first.
func (s *Service) ForDate(date string) []journal.Note {
	return s.cache.Find(func(n journal.Note) bool { return n.Date == date })
}

func (s *Service) All() []journal.Note { return s.cache.Items() }

func (s *Service) Get(id string) (journal.Note, bool) { return s.cache.Get(id) }

// Dates lists the trip days that have at least one note, in calendar order.
func (s *Service) Dates() []string {
	seen := map[string]struct{}{}
	for _, n := range s.cache.Items() {
		seen[n.Date] = struct{}{}
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
