package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

// SpawnConfig describes a worker subprocess.
type SpawnConfig struct {
	Binary string
	Args   []string
	Env    map[string]string
	Stderr io.Writer
	Logger *slog.Logger
	// StopTimeout bounds how long Close waits for the process to exit after
	// its input is closed before killing it.
	StopTimeout time.Duration
}

// Subprocess is a worker port backed by a child process speaking the stdio
// protocol. The child runs in its own process group.
type Subprocess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	inbox  *Inbox
	logger *slog.Logger
	stop   time.Duration

	writeMu sync.Mutex
	enc     *json.Encoder

	closing   chan struct{}
	closeOnce sync.Once
	exited    chan struct{}
	waitErr   error
}

// Spawn starts the worker binary. Cancelling ctx kills the process.
func Spawn(ctx context.Context, cfg SpawnConfig) (*Subprocess, error) {
	if strings.TrimSpace(cfg.Binary) == "" {
		return nil, errors.New("worker binary path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	stop := cfg.StopTimeout
	if stop <= 0 {
		stop = 5 * time.Second
	}

	cmd := exec.CommandContext(ctx, cfg.Binary, cfg.Args...)
	configureSysProc(cmd)
	cmd.Env = buildEnv(cfg.Env)
	if cfg.Stderr != nil {
		cmd.Stderr = cfg.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", cfg.Binary, err)
	}

	enc := json.NewEncoder(stdin)
	enc.SetEscapeHTML(false)
	p := &Subprocess{
		cmd:     cmd,
		stdin:   stdin,
		inbox:   NewInbox(inboxSize),
		logger:  logger.With("worker_pid", cmd.Process.Pid),
		stop:    stop,
		enc:     enc,
		closing: make(chan struct{}),
		exited:  make(chan struct{}),
	}
	p.logger.Info("worker process started", "binary", cfg.Binary)

	go p.read(stdout)
	return p, nil
}

func (p *Subprocess) read(stdout io.Reader) {
	dec := json.NewDecoder(stdout)
	var streamErr error
	for {
		var msg protocol.Message
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = fmt.Errorf("read worker output: %w", err)
			}
			break
		}
		if !p.inbox.Deliver(msg) {
			break
		}
	}

	p.waitErr = p.cmd.Wait()
	close(p.exited)

	select {
	case <-p.closing:
		p.inbox.Shutdown(nil)
		return
	default:
	}
	if streamErr == nil {
		streamErr = errors.New("worker process exited unexpectedly")
	}
	if p.waitErr != nil {
		streamErr = fmt.Errorf("%w: %w", streamErr, p.waitErr)
	}
	p.logger.Error("worker process failed", "error", streamErr)
	p.inbox.Shutdown(streamErr)
}

// Post writes req to the worker's input.
func (p *Subprocess) Post(req protocol.Request) error {
	select {
	case <-p.closing:
		return ErrClosed
	case <-p.inbox.Done():
		return ErrClosed
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.enc.Encode(req); err != nil {
		return fmt.Errorf("write worker request: %w", err)
	}
	return nil
}

// Messages returns the inbound message stream.
func (p *Subprocess) Messages() <-chan protocol.Message { return p.inbox.Messages() }

// Err reports why the stream ended.
func (p *Subprocess) Err() error { return p.inbox.Err() }

// Pid returns the worker process id.
func (p *Subprocess) Pid() int { return p.cmd.Process.Pid }

// Close closes the worker's input and waits for it to exit, killing the
// process group if it does not stop within the configured timeout.
func (p *Subprocess) Close() error {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.writeMu.Lock()
		_ = p.stdin.Close()
		p.writeMu.Unlock()

		select {
		case <-p.exited:
		case <-time.After(p.stop):
			p.logger.Warn("worker did not exit in time; killing", "timeout", p.stop)
			killProcessGroup(p.cmd)
			<-p.exited
		}
		p.inbox.Shutdown(nil)
	})
	return nil
}

func buildEnv(overrides map[string]string) []string {
	base := map[string]string{
		"PATH": os.Getenv("PATH"),
		"HOME": os.Getenv("HOME"),
	}
	for k, v := range overrides {
		base[k] = v
	}
	env := make([]string, 0, len(base))
	for k, v := range base {
		if strings.TrimSpace(k) == "" {
			continue
		}
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
