package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

// ErrClosed is returned by ports that have been closed.
var ErrClosed = errors.New("worker port closed")

const inboxSize = 256

// InProcess runs the worker on goroutines of the current process. It speaks
// the same envelopes as the out-of-process transports without serialising
// them.
type InProcess struct {
	inbox      *Inbox
	dispatcher *Dispatcher
	closeOnce  sync.Once
}

// NewInProcess starts an in-process worker.
func NewInProcess(logger *slog.Logger) *InProcess {
	p := &InProcess{inbox: NewInbox(inboxSize)}
	p.dispatcher = NewDispatcher(context.Background(), p.emit, logger)
	return p
}

func (p *InProcess) emit(msg protocol.Message) error {
	if !p.inbox.Deliver(msg) {
		return ErrClosed
	}
	return nil
}

// Post hands req to the worker.
func (p *InProcess) Post(req protocol.Request) error {
	select {
	case <-p.inbox.Done():
		return ErrClosed
	default:
	}
	p.dispatcher.Handle(req)
	return nil
}

// Messages returns the inbound message stream.
func (p *InProcess) Messages() <-chan protocol.Message { return p.inbox.Messages() }

// Err reports why the stream ended.
func (p *InProcess) Err() error { return p.inbox.Err() }

// Close cancels in-flight work and ends the message stream.
func (p *InProcess) Close() error {
	p.closeOnce.Do(func() {
		p.dispatcher.Stop()
		p.inbox.Shutdown(nil)
		p.dispatcher.Wait()
	})
	return nil
}
