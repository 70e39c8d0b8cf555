package benchmark

import (
	"strings"
	"testing"

	"github.com/ProgrammerXX1/plagio/internal/text"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"cyrillic": `Поисковые системы близких дубликатов разбивают нормализованный текст на
        шинглы фиксированной ширины и индексируют их хэши. Казахские буквы Әә ҒғҚқ
        Ңң Өө Ұұ Үү Һһ Іі сохраняются при нормализации.`,
	"long": strings.Repeat(`Near-duplicate detection splits every document into k-token
        shingles, hashes each window, and stores one posting per occurrence. The
        query side repeats the same pipeline and reconstructs collinear spans from
        matching positions, which makes the whole system sensitive to how fast
        normalization and hashing run over large corpora. `, 20),
}

func BenchmarkNormalize(b *testing.B) {
	for name, sample := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(sample)))
			for i := 0; i < b.N; i++ {
				_ = text.Normalize(sample)
			}
		})
	}
}

func BenchmarkTokenizeAndHash(b *testing.B) {
	for name, sample := range sampleTexts {
		norm := text.Normalize(sample)
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(norm)))
			var spans []text.TokenSpan
			var hashes []uint64
			for i := 0; i < b.N; i++ {
				spans = text.TokenizeSpans(norm, spans)
				hashes = text.HashTokens(norm, spans, hashes)
			}
		})
	}
}

func BenchmarkShingleHashes(b *testing.B) {
	norm := text.Normalize(sampleTexts["long"])
	spans := text.TokenizeSpans(norm, nil)
	hashes := text.HashTokens(norm, spans, nil)
	cnt := len(hashes) - text.KShingle + 1
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var sink uint64
		for pos := 0; pos < cnt; pos++ {
			sink ^= text.HashShingle(hashes, pos, text.KShingle)
		}
		_ = sink
	}
}

func BenchmarkSimHash128(b *testing.B) {
	norm := text.Normalize(sampleTexts["long"])
	spans := text.TokenizeSpans(norm, nil)
	hashes := text.HashTokens(norm, spans, nil)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		text.SimHash128(hashes)
	}
}

func BenchmarkNormalizeParallel(b *testing.B) {
	sample := sampleTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(sample)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = text.Normalize(sample)
		}
	})
}
