package speech

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// subscriberBuffer is the per-subscriber event buffer.
	subscriberBuffer = 64

	defaultTerminalWait = 5 * time.Second
)

// Terminal is implemented by events that end a session or an utterance.
// Subscribers track state from them, so they are not dropped lightly.
type Terminal interface {
	Terminal() bool
}

// Broadcaster fans events out to subscribers. When a subscriber's buffer is
// full, ordinary events are dropped for that subscriber with a warning.
// Terminal events wait for room for up to TerminalWait instead. The zero
// value is ready to use.
type Broadcaster[E any] struct {
	// TerminalWait bounds how long Publish waits on a full subscriber for a
	// terminal event. Zero means 5s.
	TerminalWait time.Duration

	mu     sync.Mutex
	subs   map[int]*subscriber[E]
	nextID int
	closed bool
}

type subscriber[E any] struct {
	ch   chan E
	gone chan struct{} // closed by cancel before it takes the lock
}

// Subscribe registers a subscriber. The returned cancel function removes it
// and closes its channel; calling cancel more than once is safe.
func (b *Broadcaster[E]) Subscribe() (<-chan E, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan E, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.subs == nil {
		b.subs = make(map[int]*subscriber[E])
	}
	id := b.nextID
	b.nextID++
	sub := &subscriber[E]{ch: ch, gone: make(chan struct{})}
	b.subs[id] = sub

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Release a Publish waiting on this subscriber first.
			close(sub.gone)
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Publish delivers e to every current subscriber.
func (b *Broadcaster[E]) Publish(e E) {
	b.mu.Lock()
	defer b.mu.Unlock()

	terminal := false
	if t, ok := any(e).(Terminal); ok {
		terminal = t.Terminal()
	}
	for id, sub := range b.subs {
		select {
		case sub.ch <- e:
			continue
		default:
		}
		if terminal && b.await(sub, e) {
			continue
		}
		slog.Warn("speech: subscriber buffer full, dropping event", "subscriber", id, "terminal", terminal)
	}
}

// await blocks until sub has room for e, sub is cancelled or the terminal
// wait expires. It reports whether e was delivered.
func (b *Broadcaster[E]) await(sub *subscriber[E], e E) bool {
	wait := b.TerminalWait
	if wait <= 0 {
		wait = defaultTerminalWait
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case sub.ch <- e:
		return true
	case <-sub.gone:
	case <-t.C:
	}
	return false
}

// Close closes all subscriber channels. Later subscriptions receive an
// already closed channel.
func (b *Broadcaster[E]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
