package langdetect

import (
	"errors"
	"testing"
)

func TestWhatlang_Detect(t *testing.T) {
	cases := map[string]string{
		"The quick brown fox jumps over the lazy dog and keeps running through the forest until night falls.": "en",
		"Der schnelle braune Fuchs springt über den faulen Hund und läuft dann weiter durch den dunklen Wald.":  "de",
		"Le renard brun rapide saute par-dessus le chien paresseux et continue de courir dans la forêt.":       "fr",
	}
	var w Whatlang
	for text, want := range cases {
		got, err := w.Detect(text)
		if err != nil {
			t.Errorf("Detect(%q): %v", text, err)
			continue
		}
		if got != want {
			t.Errorf("Detect(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestWhatlang_EmptyText(t *testing.T) {
	for _, text := range []string{"", "   \n"} {
		if _, err := (Whatlang{}).Detect(text); !errors.Is(err, ErrUndetermined) {
			t.Errorf("Detect(%q): expected ErrUndetermined, got %v", text, err)
		}
	}
}

func TestWhatlang_MinConfidence(t *testing.T) {
	w := Whatlang{MinConfidence: 1.1}
	if _, err := w.Detect("The quick brown fox jumps over the lazy dog."); !errors.Is(err, ErrUndetermined) {
		t.Errorf("expected ErrUndetermined above maximum confidence, got %v", err)
	}
}

type countingClassifier struct {
	calls int
	code  string
	err   error
}

func (c *countingClassifier) Detect(string) (string, error) {
	c.calls++
	return c.code, c.err
}

func TestCached_MemoizesSuccess(t *testing.T) {
	inner := &countingClassifier{code: "en"}
	c := NewCached(inner, 0)

	for i := 0; i < 3; i++ {
		got, err := c.Detect("same snippet")
		if err != nil || got != "en" {
			t.Fatalf("Detect = (%q, %v)", got, err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected one underlying call, got %d", inner.calls)
	}
	if c.Len() != 1 {
		t.Errorf("expected one cached entry, got %d", c.Len())
	}
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	inner := &countingClassifier{err: ErrUndetermined}
	c := NewCached(inner, 0)

	for i := 0; i < 2; i++ {
		if _, err := c.Detect("x"); !errors.Is(err, ErrUndetermined) {
			t.Fatalf("expected ErrUndetermined, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("expected errors to bypass the cache, got %d calls", inner.calls)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}
