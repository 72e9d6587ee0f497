package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/chunked"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/observability/metrics"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/worker"
)

// Port is a bidirectional channel to a worker. Messages is closed when the
// worker goes away; Err then reports why, or nil after Close.
type Port interface {
	Post(protocol.Request) error
	Messages() <-chan protocol.Message
	Err() error
	Close() error
}

// ProgressFunc receives completion fractions in [0,1].
type ProgressFunc = chunked.ProgressFunc

// Options tune a single call.
type Options struct {
	// Alphabet selects the symbol set; nil means cipher.Standard.
	Alphabet  *cipher.Alphabet
	Chunked   bool
	ChunkSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithPort routes calls to a worker. Without a port the engine runs every
// call synchronously on the caller's goroutine.
func WithPort(p Port) Option {
	return func(e *Engine) {
		e.port = p
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine is the caller-facing API for encode, decode and sniff operations.
// It is safe for concurrent use.
type Engine struct {
	port   Port
	logger *slog.Logger

	mu        sync.Mutex
	pending   map[string]*pendingCall
	failure   error
	destroyed bool

	failed   chan struct{}
	loopDone chan struct{}
}

type pendingCall struct {
	msgs chan protocol.Message
	gone chan struct{}
}

// New builds an engine. When a port is configured the engine owns it and
// closes it on Destroy.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		pending:  make(map[string]*pendingCall),
		failed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.port != nil {
		go e.route()
	} else {
		close(e.loopDone)
	}
	return e
}

// EncodeText encodes the bytes of text. The result always reports text/plain.
func (e *Engine) EncodeText(ctx context.Context, text string, opts Options, onProgress ProgressFunc) (*protocol.Result, error) {
	return e.run(ctx, "encode_text", protocol.TypeEncode, protocol.ModeText, []byte(text), opts, onProgress)
}

// EncodeFile reads f and encodes its contents, sniffing the MIME type from
// the bytes.
func (e *Engine) EncodeFile(ctx context.Context, f File, opts Options, onProgress ProgressFunc) (*protocol.Result, error) {
	if f == nil {
		return nil, errors.New("file is required")
	}
	data, err := readAll(f)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, "encode_file", protocol.TypeEncode, protocol.ModeFile, data, opts, onProgress)
}

// Decode decodes text under the configured alphabet.
func (e *Engine) Decode(ctx context.Context, text string, opts Options, onProgress ProgressFunc) (*protocol.Result, error) {
	return e.run(ctx, "decode", protocol.TypeDecode, "", []byte(text), opts, onProgress)
}

// DetectMimeType sniffs data on the worker.
func (e *Engine) DetectMimeType(ctx context.Context, data []byte) (string, error) {
	result, err := e.run(ctx, "detect_mime", protocol.TypeDetectMime, "", data, Options{}, nil)
	if err != nil {
		return "", err
	}
	return result.MimeType, nil
}

func (e *Engine) run(ctx context.Context, op string, typ protocol.RequestType, mode protocol.Mode, data []byte, opts Options, onProgress ProgressFunc) (*protocol.Result, error) {
	alphabet := opts.Alphabet
	if alphabet == nil {
		alphabet = cipher.Standard
	}
	if err := alphabet.Validate(); err != nil {
		metrics.RecordOperation(op, metrics.OutcomeError, len(data), 0)
		return nil, err
	}
	req := protocol.Request{
		Type: typ,
		Data: data,
		Options: &protocol.Options{
			Alphabet:  protocol.SpecFor(alphabet),
			Chunked:   opts.Chunked,
			ChunkSize: opts.ChunkSize,
			Mode:      mode,
		},
	}

	progress := &monotonic{fn: onProgress, last: -1}
	start := time.Now()
	var (
		result *protocol.Result
		err    error
	)
	if e.port == nil {
		result, err = e.local(ctx, req, progress.report)
	} else {
		result, err = e.remote(ctx, req, progress.report)
	}
	elapsed := time.Since(start)

	switch {
	case err == nil:
		progress.finish()
		metrics.RecordOperation(op, metrics.OutcomeSuccess, len(data), elapsed)
	case errors.Is(err, chunked.ErrCancelled):
		metrics.RecordOperation(op, metrics.OutcomeCancelled, len(data), elapsed)
	default:
		metrics.RecordOperation(op, metrics.OutcomeError, len(data), elapsed)
	}
	return result, err
}

func (e *Engine) local(ctx context.Context, req protocol.Request, onProgress ProgressFunc) (*protocol.Result, error) {
	e.mu.Lock()
	failure := e.failure
	e.mu.Unlock()
	if failure != nil {
		return nil, failure
	}
	return worker.Process(ctx, req, onProgress)
}

func (e *Engine) remote(ctx context.Context, req protocol.Request, onProgress ProgressFunc) (*protocol.Result, error) {
	call := &pendingCall{
		msgs: make(chan protocol.Message, 16),
		gone: make(chan struct{}),
	}
	e.mu.Lock()
	if e.failure != nil {
		err := e.failure
		e.mu.Unlock()
		return nil, err
	}
	id := ulid.Make().String()
	for e.pending[id] != nil {
		id = ulid.Make().String()
	}
	e.pending[id] = call
	e.mu.Unlock()
	defer e.forget(id, call)

	req.ID = id
	if err := e.port.Post(req); err != nil {
		e.mu.Lock()
		failure := e.failure
		e.mu.Unlock()
		if failure != nil {
			return nil, failure
		}
		return nil, &WorkerError{Err: fmt.Errorf("post request: %w", err)}
	}

	for {
		select {
		case msg := <-call.msgs:
			switch msg.Type {
			case protocol.MessageProgress:
				onProgress(msg.Progress)
			case protocol.MessageSuccess:
				if msg.Result == nil {
					return nil, errors.New("worker returned success without a result")
				}
				return msg.Result, nil
			case protocol.MessageError:
				return nil, msg.Err()
			default:
				e.logger.Warn("ignoring unknown worker message", "id", id, "type", msg.Type)
			}
		case <-e.failed:
			e.mu.Lock()
			err := e.failure
			e.mu.Unlock()
			return nil, err
		case <-ctx.Done():
			e.forget(id, call)
			if err := e.port.Post(protocol.Request{ID: id, Type: protocol.TypeCancel}); err != nil {
				e.logger.Debug("cancel not delivered", "id", id, "error", err)
			}
			return nil, fmt.Errorf("%w: %w", chunked.ErrCancelled, context.Cause(ctx))
		}
	}
}

// forget removes the entry for id if it still belongs to call and releases
// the router if it is blocked on it.
func (e *Engine) forget(id string, call *pendingCall) {
	e.mu.Lock()
	if e.pending[id] == call {
		delete(e.pending, id)
	}
	e.mu.Unlock()
	select {
	case <-call.gone:
	default:
		close(call.gone)
	}
}

// route delivers inbound messages to their pending calls until the port's
// stream ends.
func (e *Engine) route() {
	defer close(e.loopDone)
	for msg := range e.port.Messages() {
		e.mu.Lock()
		call := e.pending[msg.ID]
		e.mu.Unlock()
		if call == nil {
			e.logger.Debug("dropping message for unknown call", "id", msg.ID, "type", msg.Type)
			continue
		}
		select {
		case call.msgs <- msg:
		case <-call.gone:
		}
	}

	cause := e.port.Err()
	if cause == nil {
		cause = errors.New("worker message stream closed")
	}
	if e.fail(&WorkerError{Err: cause}) {
		metrics.RecordWorkerFault()
		e.logger.Error("worker port failed", "error", cause)
	}
}

// fail records err as the engine's terminal failure, wakes every pending
// call and clears the correlation table. It reports whether err was the
// first failure.
func (e *Engine) fail(err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return false
	}
	e.failure = err
	rejected := len(e.pending)
	e.pending = make(map[string]*pendingCall)
	close(e.failed)
	if rejected > 0 {
		e.logger.Warn("rejected pending calls", "count", rejected, "error", err)
	}
	return true
}

// Pending returns the number of calls awaiting a terminal message.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Destroy rejects pending calls, closes the worker port and makes every later
// call fail. It is safe to call more than once.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	e.mu.Unlock()

	e.fail(&WorkerError{Err: ErrDestroyed})
	if e.port == nil {
		return nil
	}
	err := e.port.Close()
	<-e.loopDone
	if err != nil {
		return fmt.Errorf("close worker port: %w", err)
	}
	return nil
}

// monotonic forwards progress values that never decrease and are clamped to
// [0,1].
type monotonic struct {
	fn   ProgressFunc
	mu   sync.Mutex
	last float64
}

func (m *monotonic) report(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	m.mu.Lock()
	if fraction < m.last {
		m.mu.Unlock()
		return
	}
	m.last = fraction
	m.mu.Unlock()
	if m.fn != nil {
		m.fn(fraction)
	}
}

func (m *monotonic) finish() {
	m.mu.Lock()
	done := m.last == 1
	m.mu.Unlock()
	if !done {
		m.report(1)
	}
}
