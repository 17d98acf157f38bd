package vipsfit

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindParseInput Kind = iota + 1
	KindLoad
	KindResize
	KindCrop
	KindUnsupportedFormat
	KindSave
)

func (k Kind) prefix() string {
	switch k {
	case KindParseInput:
		return "invalid request"
	case KindLoad:
		return "failed to open image"
	case KindResize:
		return "failed to resize image"
	case KindCrop:
		return "failed to crop image"
	case KindUnsupportedFormat:
		return "format not supported"
	case KindSave:
		return "failed to save image"
	}
	return "image error"
}

func (k Kind) String() string {
	switch k {
	case KindParseInput:
		return "ParseInputError"
	case KindLoad:
		return "LoadError"
	case KindResize:
		return "ResizeError"
	case KindCrop:
		return "CropError"
	case KindUnsupportedFormat:
		return "UnsupportedFormatError"
	case KindSave:
		return "SaveError"
	}
	return "Error"
}

// Error is returned by every pipeline operation. Message is the engine's
// error text, or a short description for failures detected before the engine
// is called.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.prefix()
	}
	return e.Kind.prefix() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errUnsupportedFormat() *Error {
	return &Error{Kind: KindUnsupportedFormat}
}

// IsKind reports whether err carries a pipeline error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrorReporter turns engine failures into owned errors. The engine keeps a
// single process-wide last-error slot, so it must be drained right after the
// failing call and before any other engine call.
type ErrorReporter struct {
	engine Engine
}

func NewErrorReporter(engine Engine) *ErrorReporter {
	return &ErrorReporter{engine: engine}
}

// ReadAndClear returns the contents of the engine's error slot and clears it.
func (r *ErrorReporter) ReadAndClear() string {
	return strings.TrimSpace(r.engine.LastError())
}

// call runs one engine operation and, on failure, drains the error slot
// before returning control.
func (r *ErrorReporter) call(kind Kind, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	return r.fail(kind, err)
}

func (r *ErrorReporter) fail(kind Kind, err error) error {
	slot := r.ReadAndClear()

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	msg := strings.TrimSpace(err.Error())
	switch {
	case msg == "":
		msg = slot
	case slot != "" && !strings.Contains(msg, slot):
		msg = msg + ": " + slot
	}
	return &Error{Kind: kind, Message: msg, cause: err}
}
