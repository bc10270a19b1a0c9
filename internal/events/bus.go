package events

import (
	"sync"
)

const defaultBufferSize = 100

// Bus fans run events out to subscribers. Every subscriber has a buffered
// channel. Step-finished and warning events wait for buffer space until the
// subscriber leaves or the bus closes; other events are dropped for a
// subscriber whose buffer is full.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[<-chan Event]*subscriber
	bufferSize  int
	closed      bool

	done      chan struct{}
	closeOnce sync.Once
}

type subscriber struct {
	ch       chan Event
	gone     chan struct{}
	goneOnce sync.Once
}

func (s *subscriber) leave() {
	s.goneOnce.Do(func() { close(s.gone) })
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[<-chan Event]*subscriber),
		bufferSize:  defaultBufferSize,
		done:        make(chan struct{}),
	}
}

// Subscribe returns a channel that receives events. Subscribing to a closed
// bus returns an already closed channel.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscriber{ch: make(chan Event, b.bufferSize), gone: make(chan struct{})}
	if b.closed {
		close(s.ch)
		return s.ch
	}
	b.subscribers[s.ch] = s
	return s.ch
}

// Unsubscribe removes a subscriber and closes its channel. A publisher
// waiting on that subscriber gives up.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.RLock()
	s, ok := b.subscribers[ch]
	b.mu.RUnlock()
	if !ok {
		return
	}
	s.leave()

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(s.ch)
	}
}

// Publish delivers event to every subscriber. Publishing on a nil or closed
// bus is a no-op.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	lossless := mustDeliver(event.Type)
	for _, s := range b.subscribers {
		if !lossless {
			select {
			case s.ch <- event:
			default:
			}
			continue
		}
		select {
		case s.ch <- event:
		case <-s.gone:
		case <-b.done:
		}
	}
}

func mustDeliver(t EventType) bool {
	return t == EventStepFinished || t == EventWarning
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close releases waiting publishers and closes all subscriber channels.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for key, s := range b.subscribers {
		s.leave()
		close(s.ch)
		delete(b.subscribers, key)
	}
}
