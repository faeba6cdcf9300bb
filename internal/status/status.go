// Package status implements the observable state broadcaster (C13):
// connection state, the accumulated text buffer, MSDP/GMCP snapshots,
// tab contents, the variable map, trigger/alias lists, and the context
// queue, each as a non-blocking change stream. Subscriber channels are
// buffered so a slow observer never blocks the pipeline task, matching
// the teacher's Connection channel idiom (internal/client/connection.go).
package status

import "sync"

// ConnectionState mirrors C6's lifecycle, per §3.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Closing
)

// Broadcaster fans out one named stream of values of type T to any
// number of subscribers without blocking the producer: a subscriber too
// slow to keep up silently drops the value that would have overflowed
// its buffer rather than stalling the pipeline.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a new observer with a bounded buffer and returns
// its receive channel plus an unsubscribe function.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan T, buffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
}

// Publish delivers value to every current subscriber, non-blocking:
// a full subscriber buffer drops the value rather than stalling.
func (b *Broadcaster[T]) Publish(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- value:
		default:
		}
	}
}

// Hub owns one Broadcaster per observable stream named in §4.13.
type Hub struct {
	ConnectionState *Broadcaster[ConnectionState]
	TextBuffer      *Broadcaster[string] // each publish is one appended line
	MSDPSnapshot    *Broadcaster[map[string]any]
	GMCPSnapshot    *Broadcaster[map[string]any]
	TabContent      *Broadcaster[TabUpdate]
	Variables       *Broadcaster[map[string]any]
	Triggers        *Broadcaster[[]string] // trigger IDs, current set
	Aliases         *Broadcaster[[]string] // alias IDs, current set
	ContextQueue    *Broadcaster[[]string] // queued command strings, newest-first
}

// TabUpdate names which tab changed, for TabContent subscribers that
// watch every tab through one stream.
type TabUpdate struct {
	TabID   string
	Content []string
	Unread  bool
}

// NewHub returns a Hub with every stream initialized.
func NewHub() *Hub {
	return &Hub{
		ConnectionState: NewBroadcaster[ConnectionState](),
		TextBuffer:      NewBroadcaster[string](),
		MSDPSnapshot:    NewBroadcaster[map[string]any](),
		GMCPSnapshot:    NewBroadcaster[map[string]any](),
		TabContent:      NewBroadcaster[TabUpdate](),
		Variables:       NewBroadcaster[map[string]any](),
		Triggers:        NewBroadcaster[[]string](),
		Aliases:         NewBroadcaster[[]string](),
		ContextQueue:    NewBroadcaster[[]string](),
	}
}
