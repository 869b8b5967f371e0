package imgpress

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an image could not be processed.
type ErrorKind int

const (
	// KindUnknown is returned by KindOf for errors that did not come from
	// the pipeline.
	KindUnknown ErrorKind = iota
	// KindDecode means the transport encoding (base64) was malformed.
	KindDecode
	// KindIO means the bytes could not be decoded into pixels.
	KindIO
	// KindInvalidFormat means the requested conversion is not allowed for
	// the source, or the source format could not be identified.
	KindInvalidFormat
	// KindEncode means the pixels could not be encoded.
	KindEncode
	// KindTooLarge means the input exceeded the processor's size limit.
	KindTooLarge
	// KindCanceled means the context was done before the image started.
	KindCanceled
	// KindInternal means the pipeline panicked.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindDecode:
		return "DecodeError"
	case KindIO:
		return "IoError"
	case KindInvalidFormat:
		return "InvalidFormat"
	case KindEncode:
		return "EncodeError"
	case KindTooLarge:
		return "TooLarge"
	case KindCanceled:
		return "Canceled"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// ProcessError is the error returned for a single failed image.
type ProcessError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Sentinels for errors.Is. A ProcessError matches the sentinel of its kind.
var (
	ErrDecode        = &ProcessError{Kind: KindDecode}
	ErrIO            = &ProcessError{Kind: KindIO}
	ErrInvalidFormat = &ProcessError{Kind: KindInvalidFormat}
	ErrEncode        = &ProcessError{Kind: KindEncode}
	ErrTooLarge      = &ProcessError{Kind: KindTooLarge}
	ErrCanceled      = &ProcessError{Kind: KindCanceled}
	ErrInternal      = &ProcessError{Kind: KindInternal}
)

func newError(kind ErrorKind, msg string, err error) *ProcessError {
	return &ProcessError{Kind: kind, Msg: msg, Err: err}
}

func (e *ProcessError) Error() string {
	s := "imgpress: " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *ProcessError) Is(target error) bool {
	t, ok := target.(*ProcessError)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first ProcessError in err's chain.
func KindOf(err error) ErrorKind {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// OptionsError is returned when an options record cannot be parsed.
// It fails a whole request, never a single image.
type OptionsError struct {
	Field string
	Err   error
}

func (e *OptionsError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("imgpress: parse options: %v", e.Err)
	}
	return fmt.Sprintf("imgpress: parse options: %s: %v", e.Field, e.Err)
}

func (e *OptionsError) Unwrap() error { return e.Err }
