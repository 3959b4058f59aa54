package similarity

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TokenSet is a normalized set of taxonomy tokens.
type TokenSet map[string]struct{}

// ParseTokens splits a comma-delimited string into a normalized token set.
// Blank input yields an empty set.
func ParseTokens(s string) TokenSet {
	if strings.TrimSpace(s) == "" {
		return TokenSet{}
	}
	return NewTokenSet(strings.Split(s, ","))
}

// NewTokenSet normalizes a multi-valued field into a token set.
func NewTokenSet(values []string) TokenSet {
	set := make(TokenSet, len(values))
	fold := cases.Fold()
	for _, v := range values {
		tok := normalizeToken(fold, v)
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

// normalizeToken applies NFKC, case folding, and whitespace collapsing so
// "Digital  Marketing " and "digital marketing" compare equal.
func normalizeToken(fold cases.Caser, s string) string {
	s = norm.NFKC.String(s)
	s = fold.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Intersection returns the shared tokens in sorted order.
func (s TokenSet) Intersection(other TokenSet) []string {
	var shared []string
	for tok := range s {
		if _, ok := other[tok]; ok {
			shared = append(shared, tok)
		}
	}
	sort.Strings(shared)
	return shared
}

// Jaccard returns |a ∩ b| / |a ∪ b|. ok is false when either set is empty,
// meaning the pair has no comparable data for this attribute.
func Jaccard(a, b TokenSet) (ratio float64, ok bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	inter := 0
	for tok := range a {
		if _, found := b[tok]; found {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union), true
}

// Ratio returns min(a,b)/max(a,b). ok is false when either value is absent
// or not positive; an absent value is never treated as zero.
func Ratio(a, b *float64) (ratio float64, ok bool) {
	if a == nil || b == nil || *a <= 0 || *b <= 0 {
		return 0, false
	}
	lo, hi := *a, *b
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo / hi, true
}

// IntRatio is Ratio for integer metrics such as headcount.
func IntRatio(a, b *int) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	fa, fb := float64(*a), float64(*b)
	return Ratio(&fa, &fb)
}

// SameText compares two categorical labels case-insensitively. ok is false
// when either side is blank.
func SameText(a, b string) (match bool, ok bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false, false
	}
	return strings.EqualFold(a, b), true
}

// SameBool compares two optional flags.
func SameBool(a, b *bool) (match bool, ok bool) {
	if a == nil || b == nil {
		return false, false
	}
	return *a == *b, true
}

// StageDistance returns |a - b| for two funding-stage ordinals.
func StageDistance(a, b *int) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	d := *a - *b
	if d < 0 {
		d = -d
	}
	return d, true
}
