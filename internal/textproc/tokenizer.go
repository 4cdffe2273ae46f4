// Package textproc turns raw text into normalized tokens for corpus building.
package textproc

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// plainToken mirrors the default token pattern: three or more ASCII letters.
var plainToken = regexp.MustCompile(`[a-z]{3,}`)

// minLemmaTokenLen is the shortest token kept on the lemmatizer path, exclusive.
const minLemmaTokenLen = 3

// Preprocessor tokenizes text and exposes stop word lists.
type Preprocessor struct{}

// New creates a Preprocessor.
func New() *Preprocessor {
	return &Preprocessor{}
}

// Tokenize splits text into normalized tokens. Stop words are not removed.
// Parameters:
//   - text: raw document text.
//   - language: "en" or "it".
//   - useLemma: fold, clean and lemmatize instead of plain pattern matching.
// Returns:
//   - []string: tokens in text order, duplicates preserved.
func (p *Preprocessor) Tokenize(text, language string, useLemma bool) []string {
	if !useLemma {
		return plainToken.FindAllString(strings.ToLower(text), -1)
	}

	folded := strings.ToLower(FoldASCII(text))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return r < 'a' || r > 'z'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= minLemmaTokenLen {
			continue
		}
		tokens = append(tokens, Lemmatize(f, language))
	}
	return tokens
}

// Stopwords returns the stop word set for language.
func (p *Preprocessor) Stopwords(language string) map[string]struct{} {
	return Stopwords(language)
}

// FoldASCII strips diacritics so "perché" becomes "perche".
// Characters with no ASCII decomposition are left for the caller to drop.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
