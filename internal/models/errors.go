package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrRateLimited         = errors.New("rate limited")
	ErrInvalidResponse     = errors.New("invalid response")
	ErrNoCoverage          = errors.New("no coverage")
)

const maxExcerpt = 256

// ProviderError is a failure attributed to one provider. Kind is one of the sentinel errors above.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
	Excerpt  string
}

func NewProviderError(provider string, kind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// WithExcerpt attaches the head of the offending payload.
func (e *ProviderError) WithExcerpt(body []byte) *ProviderError {
	if len(body) > maxExcerpt {
		body = body[:maxExcerpt]
	}
	e.Excerpt = string(body)
	return e
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
