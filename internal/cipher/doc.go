// Package cipher implements the reversible binary-to-text codec and the
// content sniffer used by the encodly pipeline.
//
// # Alphabets
//
// An Alphabet is 64 unique, non-whitespace symbols plus an optional padding
// character. Two alphabets are predefined:
//   - Standard - A-Z a-z 0-9 + / with "=" padding
//   - URLSafe - A-Z a-z 0-9 - _ without padding
//
// Custom alphabets are built with NewAlphabet, which rejects malformed input
// with a *ValidationError:
//
//	a, err := cipher.NewAlphabet("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz.-", "~", false)
//
// # Encoding and Decoding
//
//	text := cipher.Encode([]byte("Hello World!"), cipher.Standard)
//	// text: "SGVsbG8gV29ybGQh"
//
//	data, err := cipher.Decode(text, cipher.Standard)
//
// Decode is always parameterised by the alphabet used to encode. Characters
// outside that alphabet are reported as a *DecodeError; they are never
// mapped to a default symbol.
//
// # Content Sniffing
//
// DetectMimeType inspects leading signature bytes (PNG, JPEG, GIF, WEBP,
// BMP, TIFF, PDF, ZIP) and falls back to a printable-ASCII check over the
// first 1024 bytes.
//
// # Thread Safety
//
// Alphabets are immutable after construction and safe for concurrent use.
// All functions in this package are pure.
package cipher
