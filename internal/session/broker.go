package session

import "sync"

type EventKind string

const (
	JournalUnlocked  EventKind = "journal-unlocked"
	CommentsUnlocked EventKind = "comments-unlocked"
	NameChanged      EventKind = "name-changed"
)

type AuthEvent struct {
	SessionID   string    `json:"sessionId"`
	Kind        EventKind `json:"kind"`
	DisplayName string    `json:"displayName,omitempty"`
}

// Broker fans auth events out to subscribers. A subscriber that is not
// keeping up misses events rather than stalling the publisher.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan AuthEvent
	nextID int
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 8
	}
	return &Broker{subs: map[int]chan AuthEvent{}, buffer: buffer}
}

// Subscribe returns the event channel and the func that closes it.
func (b *Broker) Subscribe() (<-chan AuthEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan AuthEvent, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Broker) Publish(ev AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
