// Package langdetect identifies the natural language of result snippets.
package langdetect

import (
	"errors"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/patrickmn/go-cache"
)

// ErrUndetermined is returned when no language can be assigned to a text.
var ErrUndetermined = errors.New("language undetermined")

// Classifier returns an ISO 639 code for a piece of text.
type Classifier interface {
	Detect(text string) (string, error)
}

// Whatlang classifies with a trigram model. The zero value is ready to use.
type Whatlang struct {
	// MinConfidence rejects detections below it. Zero accepts everything.
	MinConfidence float64
}

// Detect returns the ISO 639-1 code of text, or the ISO 639-3 code for
// languages without a two-letter code.
func (w Whatlang) Detect(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrUndetermined
	}

	info := whatlanggo.Detect(text)
	if info.Confidence < w.MinConfidence {
		return "", ErrUndetermined
	}

	code := info.Lang.Iso6391()
	if code == "" {
		code = info.Lang.Iso6393()
	}
	if code == "" {
		return "", ErrUndetermined
	}
	return code, nil
}

// Cached memoizes another Classifier. Snippets repeat a lot across queries
// of one run, so lookups are keyed on the exact text.
type Cached struct {
	next  Classifier
	store *cache.Cache
}

// NewCached wraps next. Entries expire after ttl; zero keeps them forever.
func NewCached(next Classifier, ttl time.Duration) *Cached {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = 2 * ttl
	}
	return &Cached{next: next, store: cache.New(expiration, cleanup)}
}

// Detect returns the cached code for text, classifying it on a miss. Errors
// are not cached.
func (c *Cached) Detect(text string) (string, error) {
	if v, ok := c.store.Get(text); ok {
		return v.(string), nil
	}
	code, err := c.next.Detect(text)
	if err != nil {
		return "", err
	}
	c.store.SetDefault(text, code)
	return code, nil
}

// Len is the number of cached texts.
func (c *Cached) Len() int {
	return c.store.ItemCount()
}
