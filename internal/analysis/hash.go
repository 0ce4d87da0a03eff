package analysis

import "unicode/utf16"

// Moduli of the per-factor identity adjustments. An adjustment for modulus m
// falls in [-m/2, +m/2].
const (
	popularityModulus    = 21
	profitabilityModulus = 11
	competitionModulus   = 17
	seasonalityModulus   = 15
)

// identityHash is the rolling hash h = c + ((h << 5) - h) over UTF-16 code
// units. The shift operates on the low 32 bits of h and wraps as a 32-bit
// signed integer while the subtraction and addition do not, so h is kept in
// an int64 to produce the same values as the catalogue's historical scores.
func identityHash(identity string) int64 {
	var h int64
	for _, unit := range utf16.Encode([]rune(identity)) {
		shifted := int64(int32(h) << 5)
		h = int64(unit) + (shifted - h)
	}
	return h
}

// hashAdjustment maps identity onto [-modulus/2, +modulus/2]. The remainder is
// taken non-negative so every identity lands inside the range.
func hashAdjustment(identity string, modulus int64) int {
	r := identityHash(identity) % modulus
	if r < 0 {
		r += modulus
	}
	return int(r - modulus/2)
}
