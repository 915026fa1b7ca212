package query

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		opts      Options
		want      string
		wantEmpty bool
	}{
		{"split plain", "hello, world", Options{RemoveSpecialCharacters: true}, "hello world", false},
		{"split exact", "Software Engineering (ICSE)", Options{RemoveSpecialCharacters: true, ExactMatches: true}, `"Software Engineering" "ICSE"`, false},
		{"separator run", "a //\\ ?? b", Options{RemoveSpecialCharacters: true}, "a b", false},
		{"only separators", " (/;:,) ", Options{RemoveSpecialCharacters: true}, "", true},
		{"whitespace with strip", "   ", Options{RemoveSpecialCharacters: true}, "", true},
		{"whitespace without strip", " \t ", Options{}, "", true},
		{"trim exact", "  go modules ", Options{ExactMatches: true}, `"go modules"`, false},
		{"keep specials without strip", "what? why:", Options{}, "what? why:", false},
		{"leading separator", ", tail", Options{RemoveSpecialCharacters: true}, "tail", false},
		{"transliterate", "Café Müller, Straße", Options{RemoveSpecialCharacters: true, Transliterate: true}, "Cafe Muller Strasse", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, empty := Normalize(tc.raw, tc.opts)
			if got != tc.want || empty != tc.wantEmpty {
				t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tc.raw, got, empty, tc.want, tc.wantEmpty)
			}
		})
	}
}

func TestNormalize_NoSeparatorsAndIdempotent(t *testing.T) {
	inputs := []string{
		"hello world",
		"hello, world",
		"(a)/(b)\\c?d;e:f,g",
		`"already quoted"`,
		`"a" "b"`,
		"  spaced   out  ",
		"Zürich; Genève",
		`"`,
		"東京 / タワー",
	}

	for _, exact := range []bool{false, true} {
		opts := Options{RemoveSpecialCharacters: true, ExactMatches: exact}
		for _, in := range inputs {
			once, empty := Normalize(in, opts)
			if empty {
				continue
			}
			if strings.ContainsAny(once, `()/\?;:,`) {
				t.Errorf("Normalize(%q, exact=%v) = %q contains a separator", in, exact, once)
			}
			twice, _ := Normalize(once, opts)
			if twice != once {
				t.Errorf("Normalize not idempotent for %q (exact=%v): %q then %q", in, exact, once, twice)
			}
		}
	}
}

func TestNew(t *testing.T) {
	q := New("  ", Options{RemoveSpecialCharacters: true})
	if !q.Empty {
		t.Errorf("expected empty query")
	}

	q = New("hello, world", Options{RemoveSpecialCharacters: true})
	if q.Raw != "hello, world" || q.Normalized != "hello world" || q.String() != "hello world" {
		t.Errorf("unexpected query %+v", q)
	}
}

func TestQuery_MarkFailedIsIdempotent(t *testing.T) {
	q := New("x", Options{})
	if !q.MarkFailed() {
		t.Fatalf("first MarkFailed should report a transition")
	}
	if q.MarkFailed() {
		t.Errorf("second MarkFailed should be a no-op")
	}
	if !q.Failed {
		t.Errorf("expected query to stay failed")
	}
}

func TestTransliterate(t *testing.T) {
	cases := map[string]string{
		"naïve café":   "naive cafe",
		"Łódź":         "Lodz",
		"“smart” – ok": `"smart" - ok`,
		"Москва":       "Москва",
	}
	for in, want := range cases {
		if got := Transliterate(in); got != want {
			t.Errorf("Transliterate(%q) = %q, want %q", in, got, want)
		}
	}
}
