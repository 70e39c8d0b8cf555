package text

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii lower", "Hello World", "hello world"},
		{"digits kept", "abc 123 def", "abc 123 def"},
		{"punctuation to space", "Hello,\tмир!  \n", "hello мир"},
		{"collapse runs", "a   b\t\tc", "a b c"},
		{"trim edges", "  hello  ", "hello"},
		{"cyrillic fold", "Привет МИР", "привет мир"},
		{"yo fold", "Ёлка", "ёлка"},
		{"ukrainian i fold", "Іспит", "іспит"},
		{"kazakh fold", "Әсем Ғылым ҚалаҢқ Өмір Ұлт Үй Һәм", "әсем ғылым қалаңқ өмір ұлт үй һәм"},
		{"emoji dropped", "a 😀 b", "a b"},
		{"cjk dropped", "a 漢字 b", "a b"},
		{"nbsp separator", "a\u00a0b", "a b"},
		{"empty", "", ""},
		{"only noise", "!!! ???", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeInvalidUTF8(t *testing.T) {
	// Each invalid byte acts as a separator and consumes exactly one byte.
	in := "a" + string([]byte{0xff, 0xfe}) + "b"
	if got := Normalize(in); got != "a b" {
		t.Errorf("Normalize with invalid bytes = %q, want %q", got, "a b")
	}

	// Overlong encoding of '/' must not decode.
	in = "x" + string([]byte{0xc0, 0xaf}) + "y"
	if got := Normalize(in); got != "x y" {
		t.Errorf("Normalize with overlong sequence = %q, want %q", got, "x y")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Hello,\tмир!  \n",
		"Әсем қала 123 ABC",
		"  a   b  ",
		string([]byte{0x41, 0xff, 0x42}),
		"Привет, как дела? Fine!",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeAlphabet(t *testing.T) {
	out := Normalize("Hello МИР Әлем 42 ☃ \xff x")
	if strings.Contains(out, "  ") {
		t.Errorf("output contains double space: %q", out)
	}
	if strings.HasPrefix(out, " ") || strings.HasSuffix(out, " ") {
		t.Errorf("output has edge spaces: %q", out)
	}
	for _, r := range out {
		switch {
		case r == ' ':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r >= 0x0400 && r <= 0x052F:
		default:
			t.Errorf("unexpected codepoint %U in %q", r, out)
		}
	}
}

func TestTokenizeSpans(t *testing.T) {
	s := "hello мир 42"
	spans := TokenizeSpans(s, nil)
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	var rebuilt []string
	for _, sp := range spans {
		rebuilt = append(rebuilt, s[sp.Start:sp.Start+sp.Len])
	}
	want := strings.Fields(s)
	for i := range want {
		if rebuilt[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, rebuilt[i], want[i])
		}
	}
}

func TestTokenizeSpansReuse(t *testing.T) {
	spans := TokenizeSpans("a b c", nil)
	spans = TokenizeSpans("x y", spans)
	if len(spans) != 2 {
		t.Errorf("reused slice has %d spans, want 2", len(spans))
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := "aбв" // 1 + 2 + 2 bytes
	for max := 0; max <= len(s); max++ {
		got := TruncateUTF8(s, max)
		if len(got) > max {
			t.Errorf("TruncateUTF8(%q, %d) = %q, longer than max", s, max, got)
		}
		if !utf8.ValidString(got) {
			t.Errorf("TruncateUTF8(%q, %d) = %q, invalid UTF-8", s, max, got)
		}
	}
	if got := TruncateUTF8("abc", 10); got != "abc" {
		t.Errorf("TruncateUTF8 should be a no-op under the limit, got %q", got)
	}
}
