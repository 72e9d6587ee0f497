package cipher

import (
	"bytes"
	"encoding/base64"
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestEncodeKnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		alphabet *Alphabet
		expected string
	}{
		{"hello world", "Hello World!", Standard, "SGVsbG8gV29ybGQh"},
		{"hello world url", "Hello World!", URLSafe, "SGVsbG8gV29ybGQh"},
		{"empty", "", Standard, ""},
		{"one byte padded", "f", Standard, "Zg=="},
		{"two bytes padded", "fo", Standard, "Zm8="},
		{"three bytes", "foo", Standard, "Zm9v"},
		{"one byte unpadded", "f", URLSafe, "Zg"},
		{"two bytes unpadded", "fo", URLSafe, "Zm8"},
		{"url symbols", "\xfb\xff\xbf", URLSafe, "-_-_"},
		{"standard symbols", "\xfb\xff\xbf", Standard, "+/+/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode([]byte(tt.input), tt.alphabet)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEncodeMatchesStdlib(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 64; n++ {
		data := make([]byte, n)
		rng.Read(data)
		if got, want := Encode(data, Standard), base64.StdEncoding.EncodeToString(data); got != want {
			t.Fatalf("standard n=%d: expected %q, got %q", n, want, got)
		}
		if got, want := Encode(data, URLSafe), base64.RawURLEncoding.EncodeToString(data); got != want {
			t.Fatalf("url n=%d: expected %q, got %q", n, want, got)
		}
	}
}

func TestURLSafeDiffersOnlyInSymbols(t *testing.T) {
	data := []byte("Hello World!??>>")
	std := Encode(data, Standard)
	url := Encode(data, URLSafe)

	if strings.ContainsAny(url, "+/=") {
		t.Fatalf("url-safe output contains standard-only symbols: %q", url)
	}
	mapped := strings.NewReplacer("+", "-", "/", "_").Replace(strings.TrimRight(std, "="))
	if mapped != url {
		t.Fatalf("expected %q, got %q", mapped, url)
	}
}

func TestPaddingPolicy(t *testing.T) {
	noPad := MustAlphabet(standardSymbols, "", false)
	for n := 0; n < 10; n++ {
		data := bytes.Repeat([]byte{0xAB}, n)

		padded := Encode(data, Standard)
		if len(padded)%4 != 0 {
			t.Errorf("n=%d: padded output %q is not a multiple of 4", n, padded)
		}
		if len(padded) != EncodedLen(n, Standard) {
			t.Errorf("n=%d: EncodedLen %d, got %d", n, EncodedLen(n, Standard), len(padded))
		}

		bare := Encode(data, noPad)
		if strings.Contains(bare, "=") {
			t.Errorf("n=%d: unpadded output %q contains padding", n, bare)
		}
		if bare != strings.TrimRight(padded, "=") {
			t.Errorf("n=%d: expected %q, got %q", n, strings.TrimRight(padded, "="), bare)
		}
	}
}

func TestRoundTripAlphabets(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	shuffled := []rune(standardSymbols)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	alphabets := map[string]*Alphabet{
		"standard": Standard,
		"url":      URLSafe,
		"shuffled": MustAlphabet(string(shuffled), "", false),
		"custom":   MustAlphabet("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz.-", "~", false),
		"unicode":  MustAlphabet("αβγδεζηθικλμνξοπρστυφχψωΑΒΓΔΕΖΗΘΙΚΛΜΝΞΟΠΡΣΤΥΦΧΨΩ0123456789abcd!?", "·", false),
	}

	for name, alphabet := range alphabets {
		t.Run(name, func(t *testing.T) {
			for n := 0; n < 200; n++ {
				data := make([]byte, n)
				rng.Read(data)
				encoded := Encode(data, alphabet)
				decoded, err := Decode(encoded, alphabet)
				if err != nil {
					t.Fatalf("n=%d: decode %q: %v", n, encoded, err)
				}
				if !bytes.Equal(decoded, data) {
					t.Fatalf("n=%d: roundtrip mismatch: %x != %x", n, decoded, data)
				}
			}
		})
	}
}

func TestDecodeIgnoresWhitespaceAndOptionalPadding(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrapped", "SGVs\nbG8g\r\nV29y\tbGQh"},
		{"spaces", " SGVsbG8gV29ybGQh "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input, Standard)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if string(got) != "Hello World!" {
				t.Fatalf("expected %q, got %q", "Hello World!", got)
			}
		})
	}

	got, err := Decode("Zm8", Standard)
	if err != nil {
		t.Fatalf("decode without padding: %v", err)
	}
	if string(got) != "fo" {
		t.Fatalf("expected %q, got %q", "fo", got)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		alphabet *Alphabet
	}{
		{"not base64", "not base64 at all!!", Standard},
		{"padding in url alphabet", "Zg==", URLSafe},
		{"standard symbol in url alphabet", "+/+/", URLSafe},
		{"dangling symbol", "SGVsb", Standard},
		{"symbol after padding", "Zg==Zg==", Standard},
		{"too much padding", "Zm8==", Standard},
		{"padding only", "====", Standard},
		{"invalid utf8", "SGVs\xff", Standard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input, tt.alphabet)
			if err == nil {
				t.Fatalf("expected decode error, got %q", got)
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %T: %v", err, err)
			}
			if got != nil {
				t.Fatalf("expected no bytes on failure, got %x", got)
			}
		})
	}
}

func TestDecodeReportsOffendingCharacter(t *testing.T) {
	_, err := Decode("not base64 at all!!", Standard)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if decodeErr.Char != '!' || decodeErr.Offset != 17 {
		t.Fatalf("unexpected error position: %+v", decodeErr)
	}
}

func TestDecodeUsesConfiguredAlphabet(t *testing.T) {
	custom := MustAlphabet("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz.-", "~", false)
	encoded := Encode([]byte{0xff, 0xff, 0xff, 0x00}, custom)
	if !strings.ContainsAny(encoded, ".-~") {
		t.Fatalf("expected custom symbols in %q", encoded)
	}
	decoded, err := Decode(encoded, custom)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, []byte{0xff, 0xff, 0xff, 0x00}) {
		t.Fatalf("unexpected bytes %x", decoded)
	}
	if _, err := Decode(encoded, Standard); err == nil {
		t.Fatalf("expected standard alphabet to reject custom symbols")
	}
}
