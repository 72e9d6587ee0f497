package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

// EmitFunc delivers an outbound message to the engine side.
type EmitFunc func(protocol.Message) error

// Dispatcher runs requests concurrently and emits their progress and
// terminal messages. Messages for one id are emitted in order from a single
// goroutine; messages for different ids may interleave.
type Dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	emit   EmitFunc
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// NewDispatcher returns a dispatcher whose requests are bound to ctx. A nil
// logger discards log output.
func NewDispatcher(ctx context.Context, emit EmitFunc, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Dispatcher{
		ctx:      ctx,
		cancel:   cancel,
		emit:     emit,
		logger:   logger,
		inflight: make(map[string]context.CancelFunc),
	}
}

// Handle starts req in the background. Cancel requests abort the matching
// in-flight request and produce no message of their own.
func (d *Dispatcher) Handle(req protocol.Request) {
	if err := req.Validate(); err != nil {
		d.logger.Warn("rejecting malformed request", "id", req.ID, "type", req.Type, "error", err)
		if req.ID != "" {
			d.send(protocol.Failure(req.ID, err))
		}
		return
	}
	if req.Type == protocol.TypeCancel {
		d.mu.Lock()
		cancel, ok := d.inflight[req.ID]
		d.mu.Unlock()
		if ok {
			cancel()
			d.logger.Debug("cancelled request", "id", req.ID)
		}
		return
	}

	ctx, cancel := context.WithCancel(d.ctx)
	d.mu.Lock()
	if _, dup := d.inflight[req.ID]; dup {
		d.mu.Unlock()
		cancel()
		d.logger.Warn("dropping request with duplicate id", "id", req.ID)
		return
	}
	d.inflight[req.ID] = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.inflight, req.ID)
			d.mu.Unlock()
			cancel()
		}()
		d.run(ctx, req)
	}()
}

func (d *Dispatcher) run(ctx context.Context, req protocol.Request) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("request panicked", "id", req.ID, "panic", r)
			d.send(protocol.Failure(req.ID, fmt.Errorf("worker panic: %v", r)))
		}
	}()

	d.logger.Debug("processing request", "id", req.ID, "type", req.Type, "bytes", len(req.Data))
	result, err := Process(ctx, req, func(fraction float64) {
		d.send(protocol.Progress(req.ID, fraction))
	})
	if err != nil {
		d.send(protocol.Failure(req.ID, err))
		return
	}
	d.send(protocol.Success(req.ID, result))
}

func (d *Dispatcher) send(msg protocol.Message) {
	if err := d.emit(msg); err != nil {
		d.logger.Error("emit message failed", "id", msg.ID, "type", msg.Type, "error", err)
	}
}

// Stop cancels all in-flight requests.
func (d *Dispatcher) Stop() {
	d.cancel()
}

// Wait blocks until every started request has emitted its terminal message.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Inflight returns the number of requests currently running.
func (d *Dispatcher) Inflight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}
