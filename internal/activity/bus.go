package activity

import (
	"encoding/json"
	"sync"
)

// Bus fans entries out to live subscribers such as the /events stream.
//
// Publishing never blocks: a full buffer or a slow subscriber drops the
// entry for that subscriber (fail-open).
type Bus struct {
	events      chan Entry
	subscribers map[chan Entry]struct{}
	mu          sync.RWMutex
	closed      bool
	shutdown    chan struct{}
	once        sync.Once
}

// NewBus starts the forwarding goroutine. bufferSize bounds the number of
// entries waiting to be forwarded.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	b := &Bus{
		events:      make(chan Entry, bufferSize),
		subscribers: make(map[chan Entry]struct{}),
		shutdown:    make(chan struct{}),
	}
	go b.forward()
	return b
}

func (b *Bus) forward() {
	for {
		select {
		case e := <-b.events:
			b.mu.RLock()
			for ch := range b.subscribers {
				select {
				case ch <- e:
				default:
				}
			}
			b.mu.RUnlock()
		case <-b.shutdown:
			return
		}
	}
}

// Publish queues e for delivery. It is a no-op after Shutdown.
func (b *Bus) Publish(e Entry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.events <- e:
	default:
	}
}

// Subscribe returns a channel receiving every subsequent entry. The channel
// is closed by Unsubscribe or Shutdown.
func (b *Bus) Subscribe() chan Entry {
	ch := make(chan Entry, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes ch and closes it.
func (b *Bus) Unsubscribe(ch chan Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Shutdown stops forwarding and closes every subscriber channel.
func (b *Bus) Shutdown() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.shutdown)
		for ch := range b.subscribers {
			close(ch)
		}
		b.subscribers = make(map[chan Entry]struct{})
		b.mu.Unlock()
	})
}

// FormatSSE frames v as a Server-Sent Events message. An empty event name
// produces an unnamed "message" event.
func FormatSSE(event string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if event == "" {
		return "data: " + string(data) + "\n\n", nil
	}
	return "event: " + event + "\ndata: " + string(data) + "\n\n", nil
}
