package source

import (
	"errors"
	"fmt"
)

// Kind classifies a search failure.
type Kind int

const (
	// KindTransient covers any failure that only affects one handle.
	KindTransient Kind = iota
	// KindRateLimited means the upstream quota is exhausted.
	KindRateLimited
	// KindDataIntegrity means the upstream payload was malformed.
	KindDataIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindDataIntegrity:
		return "data_integrity"
	}
	return "transient"
}

// ErrRateLimited is the sentinel behind every KindRateLimited error.
var ErrRateLimited = errors.New("rate limited")

// Error is returned by Searcher implementations.
type Error struct {
	Kind   Kind
	Source string
	Handle string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s @%s (%s): %v", e.Source, e.Handle, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func rateLimited(src, handle string, status int) *Error {
	return &Error{
		Kind:   KindRateLimited,
		Source: src,
		Handle: handle,
		Err:    fmt.Errorf("status %d: %w", status, ErrRateLimited),
	}
}

func transient(src, handle string, err error) *Error {
	return &Error{Kind: KindTransient, Source: src, Handle: handle, Err: err}
}

// KindOf extracts the failure kind from err. Errors that did not come from
// a Searcher are transient unless they wrap ErrRateLimited.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrRateLimited) {
		return KindRateLimited
	}
	return KindTransient
}
