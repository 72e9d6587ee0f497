package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

// Serve reads newline-delimited JSON requests from r and writes JSON messages
// to w until r reaches EOF or ctx is cancelled. In-flight requests are allowed
// to finish after EOF.
func Serve(ctx context.Context, r io.Reader, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	out := bufio.NewWriter(w)
	var writeMu sync.Mutex
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	emit := func(msg protocol.Message) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := enc.Encode(msg); err != nil {
			return err
		}
		return out.Flush()
	}

	dispatcher := NewDispatcher(ctx, emit, logger)
	defer dispatcher.Wait()

	requests := make(chan protocol.Request)
	readErr := make(chan error, 1)
	go func() {
		defer close(requests)
		dec := json.NewDecoder(r)
		for {
			var req protocol.Request
			if err := dec.Decode(&req); err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- fmt.Errorf("decode request: %w", err)
				}
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("worker serving", "transport", "stdio")
	for {
		select {
		case req, ok := <-requests:
			if !ok {
				select {
				case err := <-readErr:
					dispatcher.Stop()
					return err
				default:
				}
				logger.Info("worker input closed", "inflight", dispatcher.Inflight())
				return nil
			}
			dispatcher.Handle(req)
		case <-ctx.Done():
			dispatcher.Stop()
			return ctx.Err()
		}
	}
}
