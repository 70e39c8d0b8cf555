package text

// KShingle is the fixed shingle width baked into the segment format.
const KShingle = 9

const (
	fnvOffset64 = 0xcbf29ce484222325
	fnvPrime64  = 0x100000001b3

	shingleSeed = 0x9E3779B97F4A7C15
	simhashSalt = 0xD6E8FEB86659FD93
)

// HashToken computes FNV-1a 64 over the raw bytes of one token span.
func HashToken(s string, t TokenSpan) uint64 {
	h := uint64(fnvOffset64)
	end := t.Start + t.Len
	for i := t.Start; i < end; i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

// HashTokens computes the per-token hash array for a document. The builder
// calls this once per document and derives every shingle hash from the
// array, so token bytes are hashed exactly once.
func HashTokens(s string, spans []TokenSpan, dst []uint64) []uint64 {
	dst = dst[:0]
	for _, sp := range spans {
		dst = append(dst, HashToken(s, sp))
	}
	return dst
}

// HashShingle folds k consecutive token hashes starting at pos into one
// 64-bit shingle hash. The fold is position-sensitive: reordering tokens
// inside the window yields a different hash, which span reconstruction
// relies on.
func HashShingle(tokenHashes []uint64, pos, k int) uint64 {
	h := uint64(shingleSeed)
	for i := pos; i < pos+k; i++ {
		h ^= tokenHashes[i] + shingleSeed + (h << 6) + (h >> 2)
	}
	return h
}

// SimHash128 computes two parallel 64-bit SimHashes over the token hash
// array. Stream A votes with the token hash as-is, stream B with the hash
// XOR a fixed salt. Each bit position accumulates +1/-1 votes and
// binarizes by sign.
func SimHash128(tokenHashes []uint64) (hi, lo uint64) {
	var v0, v1 [64]int32
	for _, th := range tokenHashes {
		a := th
		b := th ^ simhashSalt
		for i := 0; i < 64; i++ {
			if a>>uint(i)&1 == 1 {
				v0[i]++
			} else {
				v0[i]--
			}
			if b>>uint(i)&1 == 1 {
				v1[i]++
			} else {
				v1[i]--
			}
		}
	}
	for i := 0; i < 64; i++ {
		if v0[i] > 0 {
			hi |= 1 << uint(i)
		}
		if v1[i] > 0 {
			lo |= 1 << uint(i)
		}
	}
	return hi, lo
}
