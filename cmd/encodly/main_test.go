package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

// capture swaps the command streams for buffers and isolates config lookup.
func capture(t *testing.T, input string) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr, prevIn := stdout, stderr, stdin
	stdout, stderr, stdin = out, errOut, strings.NewReader(input)
	t.Cleanup(func() {
		stdout, stderr, stdin = prevOut, prevErr, prevIn
	})
	return out, errOut
}

func TestEncodeText(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "fallback", args: []string{"encode", "--worker", "none", "Hello World!"}, want: "SGVsbG8gV29ybGQh"},
		{name: "inprocess", args: []string{"encode", "Hello", "World!"}, want: "SGVsbG8gV29ybGQh"},
		{name: "padded", args: []string{"encode", "Hello"}, want: "SGVsbG8="},
		{name: "url safe", args: []string{"encode", "--alphabet", "url", "Hello"}, want: "SGVsbG8"},
		{name: "data uri", args: []string{"encode", "--format", "dataUri", "Hi"}, want: "data:text/plain;base64,SGk="},
		{name: "unchunked", args: []string{"encode", "--chunked=false", "Hello"}, want: "SGVsbG8="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := capture(t, "")
			if code := run(tt.args); code != 0 {
				t.Fatalf("exit %d: %s", code, errOut)
			}
			if got := strings.TrimSpace(out.String()); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEncodeStdinAndJSON(t *testing.T) {
	out, errOut := capture(t, "Hello World!\n")
	if code := run([]string{"encode", "--json"}); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var result protocol.Result
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if result.EncodedText != "SGVsbG8gV29ybGQh" || result.MimeType != cipher.MimeText || result.ByteSize != 12 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestEncodeFileAndDetect(t *testing.T) {
	out, errOut := capture(t, "")
	path := filepath.Join(t.TempDir(), "dot.png")
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if code := run([]string{"encode", "--file", path, "--format", "markdown"}); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if got := strings.TrimSpace(out.String()); got != "![Encoded image](data:image/png;base64,iVBORw0KGgo=)" {
		t.Fatalf("unexpected markdown %q", got)
	}

	out.Reset()
	if code := run([]string{"detect", path}); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if got := strings.TrimSpace(out.String()); got != cipher.MimePNG {
		t.Fatalf("expected png, got %q", got)
	}
}

func TestDecode(t *testing.T) {
	out, errOut := capture(t, "")
	if code := run([]string{"decode", "SGVsbG8gV29ybGQh"}); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if got := strings.TrimSpace(out.String()); got != "Hello World!" {
		t.Fatalf("unexpected decode %q", got)
	}

	target := filepath.Join(t.TempDir(), "out.bin")
	if code := run([]string{"decode", "--alphabet", "url", "--out", target, "SGVsbG8"}); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "Hello" {
		t.Fatalf("unexpected file contents %q, %v", data, err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, errOut := capture(t, "")
	if code := run([]string{"decode", "not base64 at all!!"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "not valid") {
		t.Fatalf("unexpected stderr %q", errOut)
	}
}

func TestBatch(t *testing.T) {
	out, errOut := capture(t, "")
	dir := t.TempDir()
	for name, body := range map[string]string{"a.txt": "Hello World!", "b.txt": "Hello"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	huge := filepath.Join(dir, "huge.bin")
	f, err := os.Create(huge)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.Truncate(60 << 20); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	f.Close()

	outDir := t.TempDir()
	code := run([]string{"batch", "--out", outDir, filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt"), huge})
	if code != 1 {
		t.Fatalf("expected exit 1 because of the rejected file, got %d", code)
	}
	if !strings.Contains(errOut.String(), "huge.bin") {
		t.Fatalf("expected rejection warning, got %q", errOut)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two result lines, got %q", out)
	}
	encoded, err := os.ReadFile(filepath.Join(outDir, "a.txt.b64"))
	if err != nil || strings.TrimSpace(string(encoded)) != "SGVsbG8gV29ybGQh" {
		t.Fatalf("unexpected batch output %q, %v", encoded, err)
	}
}

func TestUsageErrors(t *testing.T) {
	tests := [][]string{
		nil,
		{"frobnicate"},
		{"detect"},
		{"batch"},
		{"encode", "--worker", "carrier-pigeon", "x"},
		{"encode", "--symbols", "tooshort", "x"},
	}
	for _, args := range tests {
		capture(t, "")
		if code := run(args); code != 2 {
			t.Fatalf("run(%q): expected exit 2, got %d", args, code)
		}
	}
}

func TestVersion(t *testing.T) {
	out, _ := capture(t, "")
	if code := run([]string{"version"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out.String(), productName+" ") {
		t.Fatalf("unexpected version output %q", out)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
