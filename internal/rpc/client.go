package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/worker"
)

const (
	inboxSize    = 256
	closeTimeout = 5 * time.Second
)

// Client is a worker port backed by a gRPC stream.
type Client struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
	inbox  *worker.Inbox

	sendMu    sync.Mutex
	closing   chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
}

// Dial opens a worker stream to target. The stream lives until Close is
// called or ctx is cancelled. Connections are plaintext unless opts supply
// transport credentials.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial worker %s: %w", target, err)
	}
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := conn.NewStream(streamCtx, &serviceDesc.Streams[0], ProcessMethod)
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("open worker stream: %w", err)
	}
	c := &Client{
		conn:     conn,
		stream:   stream,
		cancel:   cancel,
		inbox:    worker.NewInbox(inboxSize),
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go c.read()
	return c, nil
}

func (c *Client) read() {
	defer close(c.readDone)
	for {
		var msg protocol.Message
		err := c.stream.RecvMsg(&msg)
		if err == nil {
			if !c.inbox.Deliver(msg) {
				return
			}
			continue
		}
		select {
		case <-c.closing:
			c.inbox.Shutdown(nil)
			return
		default:
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("worker stream ended")
		} else {
			err = fmt.Errorf("receive worker message: %w", err)
		}
		c.inbox.Shutdown(err)
		return
	}
}

// Post sends req on the stream.
func (c *Client) Post(req protocol.Request) error {
	select {
	case <-c.closing:
		return worker.ErrClosed
	case <-c.inbox.Done():
		return worker.ErrClosed
	default:
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.stream.SendMsg(&req); err != nil {
		return fmt.Errorf("send worker request: %w", err)
	}
	return nil
}

// Messages returns the inbound message stream.
func (c *Client) Messages() <-chan protocol.Message { return c.inbox.Messages() }

// Err reports why the stream ended.
func (c *Client) Err() error { return c.inbox.Err() }

// Close half-closes the stream, waits for the server to finish in-flight
// requests and releases the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.sendMu.Lock()
		_ = c.stream.CloseSend()
		c.sendMu.Unlock()

		select {
		case <-c.readDone:
		case <-time.After(closeTimeout):
		}
		c.cancel()
		c.inbox.Shutdown(nil)
		<-c.readDone
		err = c.conn.Close()
	})
	return err
}
