package cipher

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// AlphabetSize is the number of symbols every alphabet must define.
const AlphabetSize = 64

const (
	standardSymbols = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	urlSafeSymbols  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

var (
	// Standard is the RFC 4648 alphabet with "=" padding.
	Standard = MustAlphabet(standardSymbols, "=", false)

	// URLSafe is the RFC 4648 URL and filename safe alphabet. It emits no padding.
	URLSafe = MustAlphabet(urlSafeSymbols, "", true)
)

// Alphabet maps 6-bit values to symbols. The zero value is not usable; build
// alphabets with NewAlphabet.
type Alphabet struct {
	symbols []rune
	padding rune
	urlSafe bool

	// ascii indexes symbols below utf8.RuneSelf; -1 marks an absent entry.
	ascii [utf8.RuneSelf]int8
	wide  map[rune]byte
}

// NewAlphabet validates symbols and padding and returns the alphabet. An empty
// padding string disables padding on encode.
func NewAlphabet(symbols, padding string, urlSafe bool) (*Alphabet, error) {
	a := &Alphabet{
		symbols: []rune(symbols),
		urlSafe: urlSafe,
	}
	switch n := utf8.RuneCountInString(padding); n {
	case 0:
	case 1:
		a.padding, _ = utf8.DecodeRuneInString(padding)
	default:
		return nil, &ValidationError{Field: "padding", Reason: fmt.Sprintf("must be a single character, got %d", n)}
	}
	if err := validate(a.symbols, a.padding); err != nil {
		return nil, err
	}
	a.index()
	return a, nil
}

// MustAlphabet is like NewAlphabet but panics on invalid input. It is meant
// for package-level alphabet definitions.
func MustAlphabet(symbols, padding string, urlSafe bool) *Alphabet {
	a, err := NewAlphabet(symbols, padding, urlSafe)
	if err != nil {
		panic(err)
	}
	return a
}

func validate(symbols []rune, padding rune) error {
	if len(symbols) != AlphabetSize {
		return &ValidationError{Field: "symbols", Reason: fmt.Sprintf("expected %d symbols, got %d", AlphabetSize, len(symbols))}
	}
	seen := make(map[rune]struct{}, AlphabetSize)
	for i, r := range symbols {
		if r == utf8.RuneError {
			return &ValidationError{Field: "symbols", Reason: fmt.Sprintf("invalid UTF-8 at position %d", i)}
		}
		if unicode.IsSpace(r) {
			return &ValidationError{Field: "symbols", Reason: fmt.Sprintf("whitespace %q at position %d", r, i)}
		}
		if _, dup := seen[r]; dup {
			return &ValidationError{Field: "symbols", Reason: fmt.Sprintf("duplicate symbol %q at position %d", r, i)}
		}
		seen[r] = struct{}{}
	}
	if padding != 0 {
		if padding == utf8.RuneError || unicode.IsSpace(padding) {
			return &ValidationError{Field: "padding", Reason: "padding must be a printable character"}
		}
		if _, clash := seen[padding]; clash {
			return &ValidationError{Field: "padding", Reason: fmt.Sprintf("padding %q is also a symbol", padding)}
		}
	}
	return nil
}

// index builds the reverse lookup tables. The symbols must already be valid.
func (a *Alphabet) index() {
	for i := range a.ascii {
		a.ascii[i] = -1
	}
	for i, r := range a.symbols {
		if r < utf8.RuneSelf {
			a.ascii[r] = int8(i)
			continue
		}
		if a.wide == nil {
			a.wide = make(map[rune]byte)
		}
		a.wide[r] = byte(i)
	}
}

// Validate reports whether a satisfies the alphabet invariants. It fails for
// the zero value and for nil.
func (a *Alphabet) Validate() error {
	if a == nil {
		return &ValidationError{Field: "alphabet", Reason: "alphabet is nil"}
	}
	return validate(a.symbols, a.padding)
}

// Symbols returns the 64 symbols in index order.
func (a *Alphabet) Symbols() string { return string(a.symbols) }

// Padding returns the padding character, or "" when padding is disabled.
func (a *Alphabet) Padding() string {
	if a.padding == 0 {
		return ""
	}
	return string(a.padding)
}

// HasPadding reports whether encode emits trailing pad characters.
func (a *Alphabet) HasPadding() bool { return a.padding != 0 }

// URLSafe reports whether the alphabet is marked safe for URLs.
func (a *Alphabet) URLSafe() bool { return a.urlSafe }

// Equal reports whether two alphabets produce identical encodings.
func (a *Alphabet) Equal(b *Alphabet) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.padding == b.padding && a.urlSafe == b.urlSafe && string(a.symbols) == string(b.symbols)
}

func (a *Alphabet) String() string {
	var sb strings.Builder
	sb.WriteString(string(a.symbols))
	if a.padding != 0 {
		sb.WriteString(" pad=")
		sb.WriteRune(a.padding)
	}
	return sb.String()
}

// lookup returns the 6-bit value of r, or -1 when r is not a symbol.
func (a *Alphabet) lookup(r rune) int {
	if r >= 0 && r < utf8.RuneSelf {
		return int(a.ascii[r])
	}
	if v, ok := a.wide[r]; ok {
		return int(v)
	}
	return -1
}

// asciiOnly reports whether every symbol and the padding fit in one byte.
func (a *Alphabet) asciiOnly() bool {
	return len(a.wide) == 0 && a.padding < utf8.RuneSelf
}
