package cipher

import "fmt"

// ValidationError reports a malformed alphabet. It is raised before any work
// is dispatched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid alphabet %s: %s", e.Field, e.Reason)
}

// DecodeError reports text that cannot be decoded under the configured
// alphabet. Offset is the byte offset of the offending character in the
// original input, or -1 when the failure concerns the input as a whole.
type DecodeError struct {
	Offset int
	Char   rune
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Offset < 0 {
		return "decode failed: " + e.Reason
	}
	return fmt.Sprintf("decode failed at offset %d (%q): %s", e.Offset, e.Char, e.Reason)
}
