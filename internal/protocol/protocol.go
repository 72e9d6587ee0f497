// Package protocol defines the JSON envelopes exchanged between the
// processing engine and its workers.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
)

// RequestType names the work carried by a Request.
type RequestType string

const (
	TypeEncode     RequestType = "encode"
	TypeDecode     RequestType = "decode"
	TypeDetectMime RequestType = "detect-mime"
	// TypeCancel asks the worker to abandon the in-flight request with the
	// same id. It carries no data and never produces a reply of its own.
	TypeCancel RequestType = "cancel"
)

// MessageType names an inbound worker message.
type MessageType string

const (
	MessageProgress MessageType = "progress"
	MessageSuccess  MessageType = "success"
	MessageError    MessageType = "error"
)

// Terminal reports whether t ends the exchange for its id.
func (t MessageType) Terminal() bool {
	return t == MessageSuccess || t == MessageError
}

// Mode distinguishes text input from file input for encode requests.
type Mode string

const (
	ModeText Mode = "text"
	ModeFile Mode = "file"
)

// AlphabetSpec is the serialisable form of a cipher.Alphabet.
type AlphabetSpec struct {
	Symbols string `json:"symbols"`
	Padding string `json:"padding,omitempty"`
	URLSafe bool   `json:"urlSafe,omitempty"`
}

// SpecFor returns the wire form of a. A nil alphabet yields a nil spec.
func SpecFor(a *cipher.Alphabet) *AlphabetSpec {
	if a == nil {
		return nil
	}
	return &AlphabetSpec{Symbols: a.Symbols(), Padding: a.Padding(), URLSafe: a.URLSafe()}
}

// Alphabet rebuilds and validates the alphabet. A nil spec selects
// cipher.Standard.
func (s *AlphabetSpec) Alphabet() (*cipher.Alphabet, error) {
	if s == nil {
		return cipher.Standard, nil
	}
	return cipher.NewAlphabet(s.Symbols, s.Padding, s.URLSafe)
}

// Options tunes a single request.
type Options struct {
	Alphabet  *AlphabetSpec `json:"alphabet,omitempty"`
	Chunked   bool          `json:"chunked,omitempty"`
	ChunkSize int           `json:"chunkSize,omitempty"`
	Mode      Mode          `json:"mode,omitempty"`
}

// Request is the outbound envelope. It is not modified after dispatch.
type Request struct {
	ID      string      `json:"id"`
	Type    RequestType `json:"type"`
	Data    []byte      `json:"data,omitempty"`
	Options *Options    `json:"options,omitempty"`
}

// Validate checks the envelope fields a worker relies on.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("request id is required")
	}
	switch r.Type {
	case TypeEncode, TypeDecode, TypeDetectMime, TypeCancel:
		return nil
	default:
		return fmt.Errorf("unknown request type %q", r.Type)
	}
}

// Message is the inbound envelope.
type Message struct {
	ID       string       `json:"id"`
	Type     MessageType  `json:"type"`
	Progress float64      `json:"progress,omitempty"`
	Result   *Result      `json:"result,omitempty"`
	Error    string       `json:"error,omitempty"`
	Code     ErrorCode    `json:"code,omitempty"`
	Detail   *ErrorDetail `json:"detail,omitempty"`
}

// Progress builds a progress message.
func Progress(id string, fraction float64) Message {
	return Message{ID: id, Type: MessageProgress, Progress: fraction}
}

// Success builds a terminal success message.
func Success(id string, result *Result) Message {
	return Message{ID: id, Type: MessageSuccess, Result: result}
}

// Failure builds a terminal error message, classifying err so the receiver
// can rebuild a typed error.
func Failure(id string, err error) Message {
	msg := Message{ID: id, Type: MessageError, Error: err.Error(), Code: CodeOf(err)}
	msg.Detail = detailOf(err)
	return msg
}
