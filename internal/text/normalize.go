// Package text implements the deterministic text pipeline shared by the
// segment builder and the query side: UTF-8 normalization, span
// tokenization, token hashing, shingle hashing, and SimHash128.
//
// Normalization output is restricted to ASCII [a-z0-9], lowercased
// codepoints from the Cyrillic block range U+0400–U+052F, and single
// spaces. Everything the two sides share hash-wise flows through this
// package, so the fold table below is frozen: extending it silently would
// change shingle identity across already-built segments.
package text

import (
	"strings"
	"unicode/utf8"
)

// cyrillicLo and cyrillicHi bound the accepted Cyrillic block range.
const (
	cyrillicLo = 0x0400
	cyrillicHi = 0x052F
)

// foldCyrillic lowercases the Russian and Kazakh uppercase letters the
// pipeline recognises. Other codepoints pass through unchanged.
func foldCyrillic(r rune) rune {
	switch {
	case r >= 'А' && r <= 'Я': // U+0410..U+042F
		return r + 0x20
	case r == 'Ё':
		return 'ё'
	case r == 'І':
		return 'і'
	}
	switch r {
	case 'Ә':
		return 'ә'
	case 'Ғ':
		return 'ғ'
	case 'Қ':
		return 'қ'
	case 'Ң':
		return 'ң'
	case 'Ө':
		return 'ө'
	case 'Ұ':
		return 'ұ'
	case 'Ү':
		return 'ү'
	case 'Һ':
		return 'һ'
	}
	return r
}

// Normalize lowercases and filters s for shingling. ASCII A-Z folds to a-z
// and [a-z0-9] is preserved; Cyrillic codepoints in U+0400–U+052F are
// preserved after folding; every other codepoint, all whitespace, and each
// invalid UTF-8 byte collapse to a single space. Runs of spaces are merged
// and leading/trailing space is trimmed.
//
// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	prevSpace := true
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
				b.WriteByte(c)
				prevSpace = false
			} else if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			i++
			continue
		}

		// DecodeRuneInString rejects overlong encodings, surrogates, and
		// out-of-range sequences, consuming one byte per invalid step.
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}

		r = foldCyrillic(r)
		if r >= cyrillicLo && r <= cyrillicHi {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteByte(' ')
			prevSpace = true
		}
	}

	out := b.String()
	if n := len(out); n > 0 && out[n-1] == ' ' {
		out = out[:n-1]
	}
	return out
}

// TokenSpan identifies one whitespace-delimited token as a byte range
// inside a normalized buffer.
type TokenSpan struct {
	Start uint32
	Len   uint32
}

// TokenizeSpans splits a normalized buffer on single spaces and appends the
// token spans to dst, which is reset first. Returns the extended slice.
func TokenizeSpans(s string, dst []TokenSpan) []TokenSpan {
	dst = dst[:0]
	n := len(s)
	i := 0
	for i < n {
		for i < n && s[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}
		start := i
		for i < n && s[i] != ' ' {
			i++
		}
		dst = append(dst, TokenSpan{Start: uint32(start), Len: uint32(i - start)})
	}
	return dst
}

// TruncateUTF8 cuts s to at most max bytes without splitting a multi-byte
// sequence. Continuation bytes at the cut point are backed over.
func TruncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
