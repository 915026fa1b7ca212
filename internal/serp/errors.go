package serp

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind classifies a failed retrieval attempt.
type Kind int

const (
	// KindTransient covers recoverable network and I/O failures.
	KindTransient Kind = iota
	// KindBadResponse is a non-success status or a block page.
	KindBadResponse
	// KindEmptyEntry is a result entry without title or URL (or snippet,
	// when snippets are required).
	KindEmptyEntry
	// KindFatal means the network itself is down; nothing else can succeed.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindBadResponse:
		return "bad_response"
	case KindEmptyEntry:
		return "empty_entry"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FetchError is the error returned by a SERPProvider.
type FetchError struct {
	Kind Kind
	// Rank of the offending entry, for KindEmptyEntry.
	Rank int
	// StatusCode of the response, for KindBadResponse.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindEmptyEntry:
		return fmt.Sprintf("empty entry at rank %d", e.Rank)
	case KindBadResponse:
		if e.Err != nil {
			return fmt.Sprintf("bad response (status %d): %v", e.StatusCode, e.Err)
		}
		return fmt.Sprintf("bad response (status %d)", e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind.String()
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Errors that are not a *FetchError count
// as transient.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// classifyNetError maps a transport failure to a FetchError. Only ENETDOWN
// is fatal.
func classifyNetError(err error) *FetchError {
	if errors.Is(err, syscall.ENETDOWN) {
		return &FetchError{Kind: KindFatal, Err: err}
	}
	return &FetchError{Kind: KindTransient, Err: err}
}
