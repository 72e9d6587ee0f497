package worker

import (
	"sync"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

// Inbox is the engine-facing message stream of a worker port. The channel
// returned by Messages is closed exactly once, by Shutdown; Err then reports
// why (nil for an orderly close).
type Inbox struct {
	ch   chan protocol.Message
	done chan struct{}

	mu   sync.RWMutex
	once sync.Once
	err  error
}

// NewInbox returns an inbox buffering up to size messages.
func NewInbox(size int) *Inbox {
	return &Inbox{
		ch:   make(chan protocol.Message, size),
		done: make(chan struct{}),
	}
}

// Deliver queues msg. It blocks while the buffer is full and returns false
// once the inbox has been shut down.
func (b *Inbox) Deliver(msg protocol.Message) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.ch <- msg:
		return true
	case <-b.done:
		return false
	}
}

// Shutdown closes the stream, recording err as the reason. Only the first
// call has an effect.
func (b *Inbox) Shutdown(err error) {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		b.err = err
		close(b.ch)
		b.mu.Unlock()
	})
}

// Messages returns the stream of inbound messages.
func (b *Inbox) Messages() <-chan protocol.Message { return b.ch }

// Err reports why the stream ended. It is only meaningful after Messages has
// been closed.
func (b *Inbox) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Done is closed when Shutdown is called.
func (b *Inbox) Done() <-chan struct{} { return b.done }
