package protocol

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/chunked"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
)

// ErrorCode classifies a worker-side failure.
type ErrorCode string

const (
	CodeValidation ErrorCode = "validation"
	CodeDecode     ErrorCode = "decode"
	CodeCancelled  ErrorCode = "cancelled"
	CodeInternal   ErrorCode = "internal"
)

// ErrorDetail carries the structured fields of typed codec errors.
type ErrorDetail struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
	Offset int    `json:"offset"`
	Char   string `json:"char,omitempty"`
}

// CodeOf classifies err.
func CodeOf(err error) ErrorCode {
	var validationErr *cipher.ValidationError
	var decodeErr *cipher.DecodeError
	switch {
	case errors.As(err, &validationErr):
		return CodeValidation
	case errors.As(err, &decodeErr):
		return CodeDecode
	case errors.Is(err, chunked.ErrCancelled):
		return CodeCancelled
	default:
		return CodeInternal
	}
}

func detailOf(err error) *ErrorDetail {
	var validationErr *cipher.ValidationError
	if errors.As(err, &validationErr) {
		return &ErrorDetail{Field: validationErr.Field, Reason: validationErr.Reason}
	}
	var decodeErr *cipher.DecodeError
	if errors.As(err, &decodeErr) {
		detail := &ErrorDetail{Reason: decodeErr.Reason, Offset: decodeErr.Offset}
		if decodeErr.Char != 0 {
			detail.Char = string(decodeErr.Char)
		}
		return detail
	}
	return nil
}

// Err rebuilds the typed error carried by an error message. It returns nil
// for any other message type.
func (m Message) Err() error {
	if m.Type != MessageError {
		return nil
	}
	detail := m.Detail
	if detail == nil {
		detail = &ErrorDetail{Reason: m.Error, Offset: -1}
	}
	switch m.Code {
	case CodeValidation:
		return &cipher.ValidationError{Field: detail.Field, Reason: detail.Reason}
	case CodeDecode:
		char, _ := utf8.DecodeRuneInString(detail.Char)
		if detail.Char == "" {
			char = 0
		}
		return &cipher.DecodeError{Offset: detail.Offset, Char: char, Reason: detail.Reason}
	case CodeCancelled:
		return fmt.Errorf("%w: %s", chunked.ErrCancelled, m.Error)
	default:
		if m.Error == "" {
			return errors.New("worker reported an unspecified error")
		}
		return errors.New(m.Error)
	}
}
