package cipher

import (
	"bytes"
	"strings"
)

const (
	MimePNG         = "image/png"
	MimeJPEG        = "image/jpeg"
	MimeGIF         = "image/gif"
	MimeWebP        = "image/webp"
	MimeBMP         = "image/bmp"
	MimeTIFF        = "image/tiff"
	MimePDF         = "application/pdf"
	MimeZIP         = "application/zip"
	MimeText        = "text/plain"
	MimeOctetStream = "application/octet-stream"
)

// textSniffLimit bounds how many leading bytes the printable-text heuristic
// inspects.
const textSniffLimit = 1024

// signature is a leading byte pattern and the MIME type it identifies.
type signature struct {
	magic []byte
	mime  string
}

// signatures is checked in order; the first match wins.
var signatures = []signature{
	{magic: []byte{0x89, 0x50, 0x4E, 0x47}, mime: MimePNG},
	{magic: []byte{0xFF, 0xD8, 0xFF}, mime: MimeJPEG},
	{magic: []byte{0x47, 0x49, 0x46}, mime: MimeGIF},
	{magic: []byte{0x52, 0x49, 0x46, 0x46}, mime: MimeWebP},
	{magic: []byte{0x42, 0x4D}, mime: MimeBMP},
	{magic: []byte{0x49, 0x49, 0x2A, 0x00}, mime: MimeTIFF},
	{magic: []byte{0x25, 0x50, 0x44, 0x46}, mime: MimePDF},
	{magic: []byte{0x50, 0x4B, 0x03, 0x04}, mime: MimeZIP},
}

// DetectMimeType classifies data by its leading signature bytes. Data with no
// known signature is text/plain when its first 1024 bytes are printable ASCII,
// tab, LF or CR, and application/octet-stream otherwise. Empty input is
// text/plain.
func DetectMimeType(data []byte) string {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.mime
		}
	}
	if isPlainText(data) {
		return MimeText
	}
	return MimeOctetStream
}

func isPlainText(data []byte) bool {
	if len(data) > textSniffLimit {
		data = data[:textSniffLimit]
	}
	for _, b := range data {
		switch {
		case b >= 32 && b <= 126:
		case b == '\t', b == '\n', b == '\r':
		default:
			return false
		}
	}
	return true
}

// IsImage reports whether mime names an image type.
func IsImage(mime string) bool { return strings.HasPrefix(mime, "image/") }

// IsText reports whether mime names a text type.
func IsText(mime string) bool { return strings.HasPrefix(mime, "text/") }
