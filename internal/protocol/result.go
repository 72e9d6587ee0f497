package protocol

import (
	"fmt"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
)

// Format keys published in Result.Formats.
const (
	FormatRaw           = "raw"
	FormatDataURI       = "dataUri"
	FormatHTMLImg       = "htmlImg"
	FormatCSSBackground = "cssBackground"
	FormatMarkdown      = "markdown"
	FormatHTMLEmbed     = "htmlEmbed"
)

// Result is the outcome of one operation. It is owned by the caller once
// returned and is never modified afterwards.
type Result struct {
	EncodedText  string            `json:"encodedText,omitempty"`
	DecodedBytes []byte            `json:"decodedBytes,omitempty"`
	DecodedText  string            `json:"decodedText,omitempty"`
	MimeType     string            `json:"mimeType"`
	ByteSize     int               `json:"byteSize"`
	IsImage      bool              `json:"isImage"`
	Formats      map[string]string `json:"formats,omitempty"`
}

// NewEncodeResult assembles the encode result for size input bytes of the
// given MIME type.
func NewEncodeResult(encoded, mime string, size int) *Result {
	return &Result{
		EncodedText: encoded,
		MimeType:    mime,
		ByteSize:    size,
		IsImage:     cipher.IsImage(mime),
		Formats:     Formats(encoded, mime),
	}
}

// NewDecodeResult assembles the decode result, sniffing the MIME type of the
// decoded bytes.
func NewDecodeResult(decoded []byte) *Result {
	mime := cipher.DetectMimeType(decoded)
	result := &Result{
		DecodedBytes: decoded,
		MimeType:     mime,
		ByteSize:     len(decoded),
		IsImage:      cipher.IsImage(mime),
	}
	if cipher.IsText(mime) {
		result.DecodedText = string(decoded)
	}
	return result
}

// Formats renders the ready-to-paste snippets for an encoded payload. raw and
// dataUri are always present; images add HTML, CSS and Markdown snippets and
// text adds an HTML embed.
func Formats(encoded, mime string) map[string]string {
	dataURI := fmt.Sprintf("data:%s;base64,%s", mime, encoded)
	formats := map[string]string{
		FormatRaw:     encoded,
		FormatDataURI: dataURI,
	}
	switch {
	case cipher.IsImage(mime):
		formats[FormatHTMLImg] = fmt.Sprintf(`<img src="%s" alt="Encoded image" />`, dataURI)
		formats[FormatCSSBackground] = fmt.Sprintf(`background-image: url('%s');`, dataURI)
		formats[FormatMarkdown] = fmt.Sprintf("![Encoded image](%s)", dataURI)
	case cipher.IsText(mime):
		formats[FormatHTMLEmbed] = fmt.Sprintf(`<object data="%s" type="%s"></object>`, dataURI, mime)
	}
	return formats
}
