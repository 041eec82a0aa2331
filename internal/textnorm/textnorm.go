// Package textnorm canonicalizes free-text customer input so keyword matching
// tolerates case, accents, punctuation and slang variation.
package textnorm

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Option tunes Normalize.
type Option func(*options)

type options struct {
	keep string
}

// KeepSeparators retains '/' and ':' so dates and times survive normalization.
func KeepSeparators() Option {
	return func(o *options) {
		o.keep = "/:"
	}
}

// Normalize lower-cases s, strips diacritics, removes every character that is
// not a letter, digit or whitespace, collapses whitespace runs into one space
// and trims the result.
func Normalize(s string, opts ...Option) string {
	if s == "" {
		return ""
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	// transform.Chain is stateful, so a fresh chain is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(o.keep, r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// Tokens returns the whitespace-separated tokens of an already normalized string.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

type substitution struct {
	variant   string
	canonical string
}

// Normalizer applies Normalize followed by whole-phrase synonym substitution.
// The zero value performs plain normalization.
type Normalizer struct {
	subs []substitution
}

// NewNormalizer builds a Normalizer from a canonical -> variants table.
// Variants are normalized first and applied longest-first, so "boa tarde"
// is replaced before a shorter variant could split it.
func NewNormalizer(synonyms map[string][]string) *Normalizer {
	n := &Normalizer{}
	for canonical, variants := range synonyms {
		c := Normalize(canonical)
		for _, v := range variants {
			nv := Normalize(v)
			if nv == "" || nv == c {
				continue
			}
			n.subs = append(n.subs, substitution{variant: nv, canonical: c})
		}
	}
	sort.Slice(n.subs, func(i, j int) bool {
		if len(n.subs[i].variant) != len(n.subs[j].variant) {
			return len(n.subs[i].variant) > len(n.subs[j].variant)
		}
		return n.subs[i].variant < n.subs[j].variant
	})
	return n
}

// Normalize normalizes s and collapses configured synonyms into their canonical token.
func (n *Normalizer) Normalize(s string) string {
	out := Normalize(s)
	if n == nil || len(n.subs) == 0 || out == "" {
		return out
	}
	padded := " " + out + " "
	for _, sub := range n.subs {
		padded = strings.ReplaceAll(padded, " "+sub.variant+" ", " "+sub.canonical+" ")
	}
	return strings.Join(strings.Fields(padded), " ")
}
