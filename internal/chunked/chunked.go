// Package chunked runs codec work in bounded slices so long encodes report
// progress, yield to the Go scheduler and stop promptly when cancelled.
package chunked

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
)

// DefaultChunkSize is the nominal slice size for chunked encodes (1 MiB).
const DefaultChunkSize = 1 << 20

// ErrCancelled is returned, wrapped with the context cause, when work is
// abandoned because its context was cancelled.
var ErrCancelled = errors.New("operation cancelled")

// ProgressFunc receives the completed fraction in [0, 1].
type ProgressFunc func(fraction float64)

// AlignedChunkSize rounds size down to a whole number of 3-byte groups so
// that concatenated chunk encodings equal a single-pass encoding. Sizes below
// one group fall back to DefaultChunkSize.
func AlignedChunkSize(size int) int {
	if size < 3 {
		size = DefaultChunkSize
	}
	return size - size%3
}

// EncodeChunked encodes data chunk by chunk. After every chunk it reports
// processed/total, yields, and checks ctx. The final reported value is
// exactly 1.
func EncodeChunked(ctx context.Context, data []byte, alphabet *cipher.Alphabet, chunkSize int, onProgress ProgressFunc) (string, error) {
	report := progressReporter(onProgress)
	if err := checkpoint(ctx); err != nil {
		return "", err
	}
	total := len(data)
	if total == 0 {
		report(1)
		return "", nil
	}

	size := AlignedChunkSize(chunkSize)
	var sb strings.Builder
	sb.Grow(cipher.EncodedLen(total, alphabet))
	for offset := 0; offset < total; {
		end := min(offset+size, total)
		sb.WriteString(cipher.Encode(data[offset:end], alphabet))
		offset = end
		if offset == total {
			report(1)
			break
		}
		report(float64(offset) / float64(total))
		runtime.Gosched()
		if err := checkpoint(ctx); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// Encode encodes data in a single pass, reporting 0 before and 1 after.
func Encode(ctx context.Context, data []byte, alphabet *cipher.Alphabet, onProgress ProgressFunc) (string, error) {
	report := progressReporter(onProgress)
	if err := checkpoint(ctx); err != nil {
		return "", err
	}
	report(0)
	encoded := cipher.Encode(data, alphabet)
	report(1)
	return encoded, nil
}

// DecodeWhole decodes text in one pass. Decode symbol groups are four wide
// and cannot be resynchronised at arbitrary chunk offsets, so progress is
// only reported as 0 before and 1 after.
func DecodeWhole(ctx context.Context, text string, alphabet *cipher.Alphabet, onProgress ProgressFunc) ([]byte, error) {
	report := progressReporter(onProgress)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	report(0)
	decoded, err := cipher.Decode(text, alphabet)
	if err != nil {
		return nil, err
	}
	report(1)
	return decoded, nil
}

func checkpoint(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
	default:
		return nil
	}
}

func progressReporter(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(float64) {}
	}
	return fn
}
