package model

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/sha3"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKeyword returns the canonical form of a search keyword:
// NFC normalised, trimmed and with inner whitespace collapsed to one space.
func NormalizeKeyword(keyword string) string {
	return strings.Join(strings.Fields(norm.NFC.String(keyword)), " ")
}

// KeywordKey returns the identity of a keyword: its normalised form with
// case folded. Two keywords name the same pair only when their keys match.
func KeywordKey(keyword string) string {
	return cases.Fold().String(NormalizeKeyword(keyword))
}

// KeywordSlug returns a file-system friendly, case-folded form of a keyword.
// Letters and digits of any script are kept; everything else becomes '-'.
// Distinct keywords may share a slug; use KeywordStem for file names.
func KeywordSlug(keyword string) string {
	folded := KeywordKey(keyword)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "keyword"
	}
	return slug
}

// KeywordStem returns the slug of a keyword followed by a short hash of its
// key, so keywords differing only in punctuation get distinct stems.
func KeywordStem(keyword string) string {
	sum := sha3.Sum256([]byte(KeywordKey(keyword)))
	return KeywordSlug(keyword) + "-" + hex.EncodeToString(sum[:4])
}

// SameKeyword reports whether two keywords name the same pair.
func SameKeyword(a, b string) bool {
	return KeywordKey(a) == KeywordKey(b)
}
