package cipher

import (
	"strings"
	"unicode"
)

// EncodedLen returns the number of symbols Encode produces for n input bytes.
func EncodedLen(n int, a *Alphabet) int {
	if a.HasPadding() {
		return (n + 2) / 3 * 4
	}
	return (n*8 + 5) / 6
}

// Encode renders data under alphabet a. Each 3-byte group becomes four 6-bit
// indices read left to right. A trailing partial group is zero-filled; the
// positions it does not cover are written as padding, or dropped when the
// alphabet has none.
func Encode(data []byte, a *Alphabet) string {
	if len(data) == 0 {
		return ""
	}
	if a.asciiOnly() {
		return string(encodeASCII(data, a))
	}

	var sb strings.Builder
	sb.Grow(EncodedLen(len(data), a) * 2)
	sym := a.symbols
	i := 0
	for ; i+3 <= len(data); i += 3 {
		v := uint(data[i])<<16 | uint(data[i+1])<<8 | uint(data[i+2])
		sb.WriteRune(sym[v>>18&0x3F])
		sb.WriteRune(sym[v>>12&0x3F])
		sb.WriteRune(sym[v>>6&0x3F])
		sb.WriteRune(sym[v&0x3F])
	}
	if rem := len(data) - i; rem > 0 {
		v := uint(data[i]) << 16
		if rem == 2 {
			v |= uint(data[i+1]) << 8
		}
		sb.WriteRune(sym[v>>18&0x3F])
		sb.WriteRune(sym[v>>12&0x3F])
		if rem == 2 {
			sb.WriteRune(sym[v>>6&0x3F])
		}
		if a.padding != 0 {
			for k := rem; k < 3; k++ {
				sb.WriteRune(a.padding)
			}
		}
	}
	return sb.String()
}

func encodeASCII(data []byte, a *Alphabet) []byte {
	var table [AlphabetSize]byte
	for i, r := range a.symbols {
		table[i] = byte(r)
	}
	out := make([]byte, EncodedLen(len(data), a))
	di, si := 0, 0
	for ; si+3 <= len(data); si += 3 {
		v := uint(data[si])<<16 | uint(data[si+1])<<8 | uint(data[si+2])
		out[di] = table[v>>18&0x3F]
		out[di+1] = table[v>>12&0x3F]
		out[di+2] = table[v>>6&0x3F]
		out[di+3] = table[v&0x3F]
		di += 4
	}
	rem := len(data) - si
	if rem == 0 {
		return out
	}
	v := uint(data[si]) << 16
	if rem == 2 {
		v |= uint(data[si+1]) << 8
	}
	out[di] = table[v>>18&0x3F]
	out[di+1] = table[v>>12&0x3F]
	di += 2
	if rem == 2 {
		out[di] = table[v>>6&0x3F]
		di++
	}
	if a.padding != 0 {
		for ; di < len(out); di++ {
			out[di] = byte(a.padding)
		}
	}
	return out
}

// Decode reverses Encode under the same alphabet. Whitespace is ignored and
// trailing padding is optional. Any other character outside the alphabet, a
// symbol after padding, or a final group holding a single symbol fails with
// a *DecodeError.
func Decode(text string, a *Alphabet) ([]byte, error) {
	out := make([]byte, 0, len(text)/4*3+3)
	var (
		acc       uint32
		n         int
		padOffset = -1
		padCount  int
	)
	for off, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		if a.padding != 0 && r == a.padding {
			if padOffset < 0 {
				padOffset = off
			}
			padCount++
			continue
		}
		v := a.lookup(r)
		if v < 0 {
			return nil, &DecodeError{Offset: off, Char: r, Reason: "character is not in the alphabet"}
		}
		if padOffset >= 0 {
			return nil, &DecodeError{Offset: off, Char: r, Reason: "symbol after padding"}
		}
		acc = acc<<6 | uint32(v)
		n++
		if n == 4 {
			out = append(out, byte(acc>>16), byte(acc>>8), byte(acc))
			acc, n = 0, 0
		}
	}

	switch n {
	case 1:
		return nil, &DecodeError{Offset: -1, Reason: "truncated input: final group holds a single symbol"}
	case 2:
		out = append(out, byte(acc>>4))
	case 3:
		out = append(out, byte(acc>>10), byte(acc>>2))
	}
	if padCount > 0 && (n == 0 || padCount > 4-n) {
		return nil, &DecodeError{Offset: padOffset, Char: a.padding, Reason: "unexpected padding"}
	}
	return out, nil
}
