package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/chunked"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

const helperEnv = "ENCODLY_WORKER_HELPER"

func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "serve":
		if err := Serve(context.Background(), os.Stdin, os.Stdout, nil); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	case "crash":
		var req protocol.Request
		_ = json.NewDecoder(os.Stdin).Decode(&req)
		os.Exit(3)
	}
	os.Exit(m.Run())
}

type port interface {
	Post(protocol.Request) error
	Messages() <-chan protocol.Message
}

// collect reads messages until the terminal message for id arrives.
func collect(t *testing.T, p port, id string) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	timeout := time.After(10 * time.Second)
	for {
		select {
		case msg, ok := <-p.Messages():
			if !ok {
				t.Fatalf("message stream closed before terminal message for %s", id)
			}
			if msg.ID != id {
				continue
			}
			out = append(out, msg)
			if msg.Type.Terminal() {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", id)
		}
	}
}

func TestProcessEncode(t *testing.T) {
	png := append([]byte{0x89, 0x50, 0x4E, 0x47}, bytes.Repeat([]byte{0x01}, 20)...)
	tests := []struct {
		name    string
		req     protocol.Request
		mime    string
		encoded string
		image   bool
	}{
		{
			name:    "text",
			req:     protocol.Request{ID: "1", Type: protocol.TypeEncode, Data: []byte("Hello World!"), Options: &protocol.Options{Mode: protocol.ModeText}},
			mime:    cipher.MimeText,
			encoded: "SGVsbG8gV29ybGQh",
		},
		{
			name:    "file png",
			req:     protocol.Request{ID: "2", Type: protocol.TypeEncode, Data: png, Options: &protocol.Options{Mode: protocol.ModeFile, Chunked: true, ChunkSize: 6}},
			mime:    cipher.MimePNG,
			encoded: cipher.Encode(png, cipher.Standard),
			image:   true,
		},
		{
			name:    "url safe without options mode",
			req:     protocol.Request{ID: "3", Type: protocol.TypeEncode, Data: []byte("Hello World!"), Options: &protocol.Options{Alphabet: protocol.SpecFor(cipher.URLSafe)}},
			mime:    cipher.MimeText,
			encoded: "SGVsbG8gV29ybGQh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var last float64 = -1
			result, err := Process(context.Background(), tt.req, func(f float64) {
				if f < last {
					t.Fatalf("progress decreased: %v after %v", f, last)
				}
				last = f
			})
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if result.EncodedText != tt.encoded {
				t.Fatalf("expected %q, got %q", tt.encoded, result.EncodedText)
			}
			if result.MimeType != tt.mime || result.IsImage != tt.image || result.ByteSize != len(tt.req.Data) {
				t.Fatalf("unexpected result metadata: %+v", result)
			}
			if result.Formats[protocol.FormatRaw] != tt.encoded {
				t.Fatalf("raw format mismatch")
			}
			if last != 1 {
				t.Fatalf("expected final progress 1, got %v", last)
			}
		})
	}
}

func TestProcessDecodeAndDetect(t *testing.T) {
	result, err := Process(context.Background(), protocol.Request{ID: "d", Type: protocol.TypeDecode, Data: []byte("SGVsbG8gV29ybGQh")}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.DecodedText != "Hello World!" || result.MimeType != cipher.MimeText || result.ByteSize != 12 {
		t.Fatalf("unexpected decode result: %+v", result)
	}

	_, err = Process(context.Background(), protocol.Request{ID: "e", Type: protocol.TypeDecode, Data: []byte("not base64 at all!!")}, nil)
	var decodeErr *cipher.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected decode error, got %v", err)
	}

	result, err = Process(context.Background(), protocol.Request{ID: "m", Type: protocol.TypeDetectMime, Data: []byte("%PDF-1.4")}, nil)
	if err != nil || result.MimeType != cipher.MimePDF {
		t.Fatalf("unexpected detect result: %+v, %v", result, err)
	}
}

func TestProcessRejectsInvalidAlphabet(t *testing.T) {
	req := protocol.Request{ID: "v", Type: protocol.TypeEncode, Data: []byte("x"), Options: &protocol.Options{Alphabet: &protocol.AlphabetSpec{Symbols: "short"}}}
	_, err := Process(context.Background(), req, nil)
	var validationErr *cipher.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInProcessRoundTrip(t *testing.T) {
	p := NewInProcess(nil)
	defer p.Close()

	if err := p.Post(protocol.Request{ID: "a", Type: protocol.TypeEncode, Data: []byte("Hello World!"), Options: &protocol.Options{Mode: protocol.ModeText}}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	msgs := collect(t, p, "a")
	final := msgs[len(msgs)-1]
	if final.Type != protocol.MessageSuccess || final.Result.EncodedText != "SGVsbG8gV29ybGQh" {
		t.Fatalf("unexpected terminal message: %+v", final)
	}
	if len(msgs) < 2 || msgs[len(msgs)-2].Type != protocol.MessageProgress || msgs[len(msgs)-2].Progress != 1 {
		t.Fatalf("expected progress 1 before success, got %+v", msgs)
	}

	if err := p.Post(protocol.Request{ID: "b", Type: protocol.TypeDecode, Data: []byte("!!")}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	msgs = collect(t, p, "b")
	if final := msgs[len(msgs)-1]; final.Type != protocol.MessageError || final.Code != protocol.CodeDecode {
		t.Fatalf("expected decode failure, got %+v", final)
	}
}

func TestInProcessCancel(t *testing.T) {
	p := NewInProcess(nil)
	defer p.Close()

	data := bytes.Repeat([]byte{0x42}, 2<<20)
	req := protocol.Request{ID: "big", Type: protocol.TypeEncode, Data: data, Options: &protocol.Options{Chunked: true, ChunkSize: 1024}}
	if err := p.Post(req); err != nil {
		t.Fatalf("Post: %v", err)
	}
	first := <-p.Messages()
	if first.ID != "big" || first.Type != protocol.MessageProgress {
		t.Fatalf("expected progress first, got %+v", first)
	}
	if err := p.Post(protocol.Request{ID: "big", Type: protocol.TypeCancel}); err != nil {
		t.Fatalf("Post cancel: %v", err)
	}
	msgs := collect(t, p, "big")
	final := msgs[len(msgs)-1]
	if final.Type != protocol.MessageError || final.Code != protocol.CodeCancelled {
		t.Fatalf("expected cancelled failure, got %+v", final)
	}
	if !errors.Is(final.Err(), chunked.ErrCancelled) {
		t.Fatalf("expected rebuilt ErrCancelled, got %v", final.Err())
	}
}

func TestInProcessPostAfterClose(t *testing.T) {
	p := NewInProcess(nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Post(protocol.Request{ID: "x", Type: protocol.TypeEncode}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, ok := <-p.Messages(); ok {
		t.Fatalf("expected closed message stream")
	}
	if p.Err() != nil {
		t.Fatalf("expected orderly close, got %v", p.Err())
	}
}

func TestServeStdio(t *testing.T) {
	var input bytes.Buffer
	enc := json.NewEncoder(&input)
	for _, req := range []protocol.Request{
		{ID: "1", Type: protocol.TypeEncode, Data: []byte("Hello World!"), Options: &protocol.Options{Mode: protocol.ModeText}},
		{ID: "2", Type: protocol.TypeDetectMime, Data: []byte{0xFF, 0xD8, 0xFF}},
		{ID: "3", Type: "bogus"},
	} {
		if err := enc.Encode(req); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	var output bytes.Buffer
	if err := Serve(context.Background(), &input, &output, nil); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	terminal := map[string]protocol.Message{}
	scanner := bufio.NewScanner(&output)
	for scanner.Scan() {
		var msg protocol.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			t.Fatalf("decode %q: %v", scanner.Text(), err)
		}
		if msg.Type.Terminal() {
			terminal[msg.ID] = msg
		}
	}
	if got := terminal["1"]; got.Type != protocol.MessageSuccess || got.Result.EncodedText != "SGVsbG8gV29ybGQh" {
		t.Fatalf("unexpected reply for 1: %+v", got)
	}
	if got := terminal["2"]; got.Type != protocol.MessageSuccess || got.Result.MimeType != cipher.MimeJPEG {
		t.Fatalf("unexpected reply for 2: %+v", got)
	}
	if got := terminal["3"]; got.Type != protocol.MessageError || !strings.Contains(got.Error, "unknown request type") {
		t.Fatalf("unexpected reply for 3: %+v", got)
	}
}

func TestServeRejectsMalformedInput(t *testing.T) {
	err := Serve(context.Background(), strings.NewReader("{not json"), &bytes.Buffer{}, nil)
	if err == nil || !strings.Contains(err.Error(), "decode request") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestSubprocessRoundTrip(t *testing.T) {
	p, err := Spawn(context.Background(), SpawnConfig{
		Binary: os.Args[0],
		Env:    map[string]string{helperEnv: "serve"},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	if err := p.Post(protocol.Request{ID: "s1", Type: protocol.TypeEncode, Data: []byte("Hello World!"), Options: &protocol.Options{Alphabet: protocol.SpecFor(cipher.URLSafe)}}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	msgs := collect(t, p, "s1")
	if final := msgs[len(msgs)-1]; final.Type != protocol.MessageSuccess || final.Result.EncodedText != "SGVsbG8gV29ybGQh" {
		t.Fatalf("unexpected terminal message: %+v", final)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-p.Messages(); ok {
		t.Fatalf("expected message stream to close")
	}
	if p.Err() != nil {
		t.Fatalf("expected orderly shutdown, got %v", p.Err())
	}
}

func TestSubprocessCrashIsReported(t *testing.T) {
	p, err := Spawn(context.Background(), SpawnConfig{
		Binary: os.Args[0],
		Env:    map[string]string{helperEnv: "crash"},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	if err := p.Post(protocol.Request{ID: "c1", Type: protocol.TypeEncode, Data: []byte("x")}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	timeout := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-p.Messages():
			if !ok {
				if p.Err() == nil {
					t.Fatalf("expected a fault to be recorded")
				}
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for crash")
		}
	}
}

func TestSpawnRequiresBinary(t *testing.T) {
	if _, err := Spawn(context.Background(), SpawnConfig{}); err == nil {
		t.Fatalf("expected error for empty binary")
	}
}
