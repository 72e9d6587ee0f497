package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/batch"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/engine"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runEncode(args []string) int {
	var g globalFlags
	fs := newFlagSet("encode", &g)
	filePath := fs.String("file", "", "encode the contents of this file")
	format := fs.String("format", protocol.FormatRaw, "output snippet: raw, dataUri, htmlImg, cssBackground, markdown or htmlEmbed")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	progress := fs.Bool("progress", false, "report progress on stderr")

	ctx, cancel := signalContext()
	defer cancel()
	s, code := prepare(ctx, fs, &g, args)
	if s == nil {
		return code
	}
	defer s.close()

	var onProgress engine.ProgressFunc
	if *progress {
		onProgress = func(f float64) { fmt.Fprintf(stderr, "\rencoding %3.0f%%", f*100) }
	}

	var (
		result *protocol.Result
		err    error
	)
	switch {
	case *filePath != "":
		if fs.NArg() > 0 {
			fmt.Fprintln(stderr, "encode takes either TEXT or --file, not both")
			return 2
		}
		f, ferr := engine.OpenFile(*filePath)
		if ferr != nil {
			fmt.Fprintf(stderr, "encode: %v\n", ferr)
			return 1
		}
		result, err = s.engine.EncodeFile(ctx, f, s.options, onProgress)
	default:
		text, terr := textArg(fs.Args())
		if terr != nil {
			fmt.Fprintf(stderr, "encode: %v\n", terr)
			return 2
		}
		result, err = s.engine.EncodeText(ctx, text, s.options, onProgress)
	}
	if *progress {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}

	if *asJSON {
		return printJSON(result)
	}
	snippet, ok := result.Formats[*format]
	if !ok {
		fmt.Fprintf(stderr, "format %q is not available for %s\n", *format, result.MimeType)
		return 1
	}
	fmt.Fprintln(stdout, snippet)
	return 0
}

func runDecode(args []string) int {
	var g globalFlags
	fs := newFlagSet("decode", &g)
	filePath := fs.String("file", "", "decode the text stored in this file")
	outPath := fs.String("out", "", "write decoded bytes to this file")
	asJSON := fs.Bool("json", false, "print the full result as JSON")

	ctx, cancel := signalContext()
	defer cancel()
	s, code := prepare(ctx, fs, &g, args)
	if s == nil {
		return code
	}
	defer s.close()

	var text string
	if *filePath != "" {
		data, err := os.ReadFile(*filePath)
		if err != nil {
			fmt.Fprintf(stderr, "decode: %v\n", err)
			return 1
		}
		text = string(data)
	} else {
		var err error
		if text, err = textArg(fs.Args()); err != nil {
			fmt.Fprintf(stderr, "decode: %v\n", err)
			return 2
		}
	}

	result, err := s.engine.Decode(ctx, text, s.options, nil)
	if err != nil {
		var decodeErr *cipher.DecodeError
		if errors.As(err, &decodeErr) {
			fmt.Fprintf(stderr, "decode: input is not valid under the %s alphabet: %v\n", s.cfg.Alphabet.Name, err)
			return 1
		}
		fmt.Fprintf(stderr, "decode: %v\n", err)
		return 1
	}
	s.logger.Info("decoded", "bytes", result.ByteSize, "mime", result.MimeType)

	switch {
	case *outPath != "":
		if err := os.WriteFile(*outPath, result.DecodedBytes, 0o644); err != nil {
			fmt.Fprintf(stderr, "decode: %v\n", err)
			return 1
		}
	case *asJSON:
		return printJSON(result)
	case result.DecodedText != "":
		fmt.Fprintln(stdout, result.DecodedText)
	default:
		if _, err := stdout.Write(result.DecodedBytes); err != nil {
			fmt.Fprintf(stderr, "decode: %v\n", err)
			return 1
		}
	}
	return 0
}

func runDetect(args []string) int {
	var g globalFlags
	fs := newFlagSet("detect", &g)

	ctx, cancel := signalContext()
	defer cancel()
	s, code := prepare(ctx, fs, &g, args)
	if s == nil {
		return code
	}
	defer s.close()

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "detect requires exactly one PATH")
		return 2
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "detect: %v\n", err)
		return 1
	}
	mime, err := s.engine.DetectMimeType(ctx, data)
	if err != nil {
		fmt.Fprintf(stderr, "detect: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, mime)
	return 0
}

func runBatch(args []string) int {
	var g globalFlags
	fs := newFlagSet("batch", &g)
	outDir := fs.String("out", "", "write each encoding to DIR/<name>.b64")

	ctx, cancel := signalContext()
	defer cancel()
	s, code := prepare(ctx, fs, &g, args)
	if s == nil {
		return code
	}

	if fs.NArg() == 0 {
		s.close()
		fmt.Fprintln(stderr, "batch requires at least one PATH")
		return 2
	}

	exit := 0
	var files []engine.File
	for _, path := range fs.Args() {
		f, err := engine.OpenFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "skip %s: %v\n", path, err)
			exit = 1
			continue
		}
		files = append(files, f)
	}

	// The queue owns the session's engine and destroys it.
	queue := batch.NewQueue(s.engine,
		batch.WithConcurrency(s.cfg.Batch.Concurrency),
		batch.WithMaxFileSize(s.cfg.Batch.MaxFileSize),
		batch.WithOptions(s.options),
		batch.WithLogger(s.logger.With("component", "batch")),
	)
	defer s.close()
	defer queue.Destroy()

	ids, warnings := queue.AddFiles(files...)
	for _, w := range warnings {
		fmt.Fprintf(stderr, "rejected: %v\n", w)
		exit = 1
	}
	if err := queue.Wait(ctx); err != nil {
		fmt.Fprintf(stderr, "batch interrupted: %v\n", err)
		return 1
	}

	for _, id := range ids {
		item, ok := queue.Item(id)
		if !ok {
			continue
		}
		if item.Status != batch.StatusCompleted {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", item.Name, item.Status, item.Error)
			exit = 1
			continue
		}
		fmt.Fprintf(stdout, "%s\t%s\t%d\t%s\n", item.Name, item.Status, item.Size, item.Result.MimeType)
		if *outDir != "" {
			target := filepath.Join(*outDir, item.Name+".b64")
			if err := os.WriteFile(target, []byte(item.Result.EncodedText+"\n"), 0o644); err != nil {
				fmt.Fprintf(stderr, "write %s: %v\n", target, err)
				exit = 1
			}
		}
	}
	stats := queue.Stats()
	s.logger.Info("batch finished", "completed", stats.Completed, "failed", stats.Failed, "rejected", len(warnings))
	return exit
}

// textArg joins the positional arguments, or reads stdin when there are none.
func textArg(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func printJSON(v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}
