// internal/builder/errors.go
package builder

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrMalformedArticle    = errors.New("malformed article")
	ErrSelectorNotFound    = errors.New("selector not found")
	ErrMissingItemTemplate = errors.New("missing item template")
	ErrIOFailure           = errors.New("io failure")
)

// Error is the concrete error returned by the rendering pipeline.
type Error struct {
	Kind     error  // one of the Err* kinds above
	Path     string // file the operation was working on
	Selector string // structural selector, if any
	Err      error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Selector != "" {
		msg += fmt.Sprintf(" (selector %q)", e.Selector)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

func ioFailure(path string, err error) error {
	return &Error{Kind: ErrIOFailure, Path: path, Err: err}
}

func selectorNotFound(path, selector string, err error) error {
	return &Error{Kind: ErrSelectorNotFound, Path: path, Selector: selector, Err: err}
}
