package cache

import (
	"errors"
	"time"
)

// Phase is the lifecycle of a cache instance.
type Phase int

const (
	Uninitialized Phase = iota
	Loading
	Live
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Live:
		return "live"
	default:
		return "uninitialized"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// WriteResult is what a caller learns about a write within the wait window.
type WriteResult int

const (
	// WriteConfirmed: the store acknowledged the write in time.
	WriteConfirmed WriteResult = iota
	// WritePending: no answer within the window; the write is still in flight.
	WritePending
	// WriteFailed: the store rejected the write. Local state is left as is and
	// reconciled by the next server-confirmed sync.
	WriteFailed
)

func (r WriteResult) String() string {
	switch r {
	case WriteConfirmed:
		return "confirmed"
	case WritePending:
		return "pending"
	default:
		return "failed"
	}
}

func (r WriteResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// TempIDPrefix marks ids generated locally for unconfirmed creates.
const TempIDPrefix = "local-"

var (
	ErrNotFound          = errors.New("entity not found")
	ErrPendingCreate     = errors.New("entity is not confirmed by the server yet")
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrAlreadyStarted    = errors.New("cache already started")
	ErrFetchTimeout      = errors.New("timed out waiting for server")
)

// SyncState describes how far the in-memory list can be trusted. It is
// process local and never persisted.
type SyncState struct {
	Phase             Phase     `json:"phase"`
	FromCache         bool      `json:"fromCache"`
	LastSynced        time.Time `json:"lastSynced"`
	Refreshing        bool      `json:"refreshing"`
	RefreshError      string    `json:"refreshError,omitempty"`
	SubscriptionError string    `json:"subscriptionError,omitempty"`
	LastWriteError    string    `json:"lastWriteError,omitempty"`
	HasPendingWrites  bool      `json:"hasPendingWrites"`
	Gated             bool      `json:"gated"`
}

// HasSynced reports whether the cache ever held server-confirmed data.
func (s SyncState) HasSynced() bool {
	return !s.LastSynced.IsZero()
}
