package worker

import (
	"context"
	"fmt"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/chunked"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

// Process executes one request and returns its result. It is the single
// implementation shared by every worker transport and by the engine's
// synchronous fallback, so results never depend on where the work ran.
func Process(ctx context.Context, req protocol.Request, onProgress chunked.ProgressFunc) (*protocol.Result, error) {
	opts := req.Options
	if opts == nil {
		opts = &protocol.Options{}
	}
	alphabet, err := opts.Alphabet.Alphabet()
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case protocol.TypeEncode:
		var encoded string
		if opts.Chunked {
			chunkSize := opts.ChunkSize
			if chunkSize <= 0 {
				chunkSize = chunked.DefaultChunkSize
			}
			encoded, err = chunked.EncodeChunked(ctx, req.Data, alphabet, chunkSize, onProgress)
		} else {
			encoded, err = chunked.Encode(ctx, req.Data, alphabet, onProgress)
		}
		if err != nil {
			return nil, err
		}
		mime := cipher.MimeText
		if opts.Mode != protocol.ModeText {
			mime = cipher.DetectMimeType(req.Data)
		}
		return protocol.NewEncodeResult(encoded, mime, len(req.Data)), nil

	case protocol.TypeDecode:
		decoded, err := chunked.DecodeWhole(ctx, string(req.Data), alphabet, onProgress)
		if err != nil {
			return nil, err
		}
		return protocol.NewDecodeResult(decoded), nil

	case protocol.TypeDetectMime:
		mime := cipher.DetectMimeType(req.Data)
		if onProgress != nil {
			onProgress(1)
		}
		return &protocol.Result{MimeType: mime, ByteSize: len(req.Data), IsImage: cipher.IsImage(mime)}, nil

	default:
		return nil, fmt.Errorf("unsupported request type %q", req.Type)
	}
}
