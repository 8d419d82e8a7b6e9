// Package match provides the field comparison primitives used by
// reconciliation: numeric tolerance, normalized identifier equality,
// text similarity, and date equality. Every primitive is symmetric in
// its two arguments.
package match

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Numeric reports whether two amounts agree within tolerance, using
// absolute difference. The returned difference is |a - b|.
func Numeric(a, b, tolerance decimal.Decimal) (matched bool, difference decimal.Decimal) {
	difference = a.Sub(b).Abs()
	return difference.LessThanOrEqual(tolerance), difference
}

// NormalizeIdentifier strips spaces and hyphens and uppercases the
// rest, so "INV-001" and "inv 001" compare equal.
func NormalizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Identifier reports whether two identifiers are equal after
// normalization. Normalization never relaxes beyond case, spaces,
// and hyphens; "INV-001" does not match "INV-002".
func Identifier(a, b string) bool {
	return NormalizeIdentifier(a) == NormalizeIdentifier(b)
}

// Text reports whether two strings are similar enough, comparing
// case-insensitively after trimming surrounding whitespace. The
// returned ratio is in [0, 1].
func Text(a, b string, threshold float64) (matched bool, ratio float64) {
	na := strings.ToLower(strings.TrimSpace(a))
	nb := strings.ToLower(strings.TrimSpace(b))
	ratio = Similarity(na, nb)
	return ratio >= threshold, ratio
}

// Date reports whether two date strings denote the same day. Dates are
// compared as exact strings; callers normalize to ISO 8601 upstream.
func Date(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

// Similarity returns 2*LCS(a,b) / (len(a)+len(b)), the longest common
// subsequence ratio over runes. Counting runes keeps accented vendor
// names ("Señores") weighted the same as ASCII. Two empty strings are
// fully similar.
func Similarity(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	lcs := longestCommonSubsequence(ra, rb)
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}

// longestCommonSubsequence computes LCS length with a rolling row, so
// memory stays O(min(len(a), len(b))).
func longestCommonSubsequence(a, b []rune) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := 1; i <= len(b); i++ {
		for j := 1; j <= len(a); j++ {
			if b[i-1] == a[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}
