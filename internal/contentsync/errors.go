package contentsync

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures by how they are handled: parse and shape
// problems are recovered with defaults, validation blocks a save, transport
// failures are returned (or retried silently by pollers).
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindParse
	KindValidation
	KindTransport
	KindShapeMismatch
)

var (
	ErrParse          = errors.New("parse error")
	ErrValidation     = errors.New("validation error")
	ErrTransport      = errors.New("transport error")
	ErrShapeMismatch  = errors.New("shape mismatch")
	ErrUnknownSection = errors.New("unknown section")
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindShapeMismatch:
		return "shape_mismatch"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindParse:
		return ErrParse
	case KindValidation:
		return ErrValidation
	case KindTransport:
		return ErrTransport
	case KindShapeMismatch:
		return ErrShapeMismatch
	default:
		return nil
	}
}

type Error struct {
	Kind    ErrorKind
	Op      string
	Section string
	Err     error
}

func (e *Error) Error() string {
	prefix := e.Op
	if e.Section != "" {
		prefix = fmt.Sprintf("%s %s", e.Op, e.Section)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", prefix, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	sentinel := e.Kind.sentinel()
	return sentinel != nil && target == sentinel
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func isNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
