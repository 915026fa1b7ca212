// Package query turns raw input strings into canonical search queries.
package query

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// separators matches a run of special characters together with the
// whitespace around it.
var separators = regexp.MustCompile(`\s*[()/\\?;:,]+\s*`)

// Options controls normalization.
type Options struct {
	// ExactMatches wraps each term in double quotes.
	ExactMatches bool
	// RemoveSpecialCharacters splits the input on ( ) / \ ? ; : , runs.
	RemoveSpecialCharacters bool
	// Transliterate folds the input to its closest plain-text form first.
	Transliterate bool
}

// Query is one distinct search query for the lifetime of a run.
type Query struct {
	Raw        string
	Normalized string
	// Empty is set when normalization leaves nothing to search for, or when
	// the engine returned no results for it.
	Empty bool
	// Failed is set once retries have been exhausted.
	Failed bool
}

// New normalizes raw into a Query.
func New(raw string, opts Options) *Query {
	normalized, empty := Normalize(raw, opts)
	return &Query{Raw: raw, Normalized: normalized, Empty: empty}
}

// MarkFailed flags the query as failed. It reports false if the query had
// already been marked.
func (q *Query) MarkFailed() bool {
	if q.Failed {
		return false
	}
	q.Failed = true
	return true
}

func (q *Query) String() string {
	return q.Normalized
}

// Normalize returns the canonical, unencoded form of raw and whether it is
// empty. The result is used both for the request and for deduplication.
func Normalize(raw string, opts Options) (string, bool) {
	s := raw
	if opts.Transliterate {
		s = Transliterate(s)
	}

	if !opts.RemoveSpecialCharacters {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", true
		}
		if opts.ExactMatches {
			s = quote(s)
		}
		return s, false
	}

	var terms []string
	for _, frag := range separators.Split(s, -1) {
		if frag = strings.TrimSpace(frag); frag != "" {
			terms = append(terms, frag)
		}
	}
	if len(terms) == 0 {
		return "", true
	}
	if opts.ExactMatches {
		for i, t := range terms {
			terms[i] = quote(t)
		}
	}
	return strings.Join(terms, " "), false
}

// quote wraps s in double quotes unless it already is, so that normalizing
// a normalized query is a no-op.
func quote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s
	}
	return `"` + s + `"`
}

var ligatures = strings.NewReplacer(
	"ß", "ss", "Æ", "AE", "æ", "ae", "Œ", "OE", "œ", "oe",
	"Ø", "O", "ø", "o", "Ł", "L", "ł", "l", "Đ", "D", "đ", "d",
	"Þ", "Th", "þ", "th", "ı", "i",
	"\u2018", "'", "\u2019", "'", "\u201c", `"`, "\u201d", `"`,
	"\u2013", "-", "\u2014", "-", "\u00a0", " ",
)

// Transliterate strips diacritics and expands common ligatures and
// typographic punctuation. Letters of other scripts, such as CJK or
// Cyrillic, lose their combining marks but are not romanized: the engine
// accepts them percent-encoded, and a guessed romanization would change the
// query.
func Transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		return s
	}
	return out
}
