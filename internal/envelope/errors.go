package envelope

import (
	"context"
	"errors"
	"fmt"
)

// Kind represents the category of an unwrap or transport failure.
type Kind string

const (
	// KindMalformedResponse indicates the body could not be parsed as JSON.
	KindMalformedResponse Kind = "malformed_response"

	// KindInvalidShape indicates the payload has no object-valued response field.
	KindInvalidShape Kind = "invalid_shape"

	// KindDomain indicates the server reported an error or message field.
	KindDomain Kind = "domain_error"

	// KindTransport indicates a network or HTTP failure with no usable body.
	KindTransport Kind = "transport_error"
)

const (
	msgMalformed    = "Received a malformed response from the server"
	msgInvalidShape = "Received invalid response format from server"
	msgTimeout      = "The generator took too long to respond"
)

// Error is the classified failure surfaced to the user. Error() returns the
// user-visible message; the underlying cause is available through Unwrap.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithStatusCode records the HTTP status the failure arrived with.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// ErrMalformed creates a MalformedResponse error.
func ErrMalformed(cause error) *Error {
	return NewError(KindMalformedResponse, msgMalformed).WithCause(cause)
}

// ErrInvalidShape creates an InvalidShape error.
func ErrInvalidShape() *Error {
	return NewError(KindInvalidShape, msgInvalidShape)
}

// ErrDomain creates a DomainError carrying the server's message.
func ErrDomain(message string) *Error {
	return NewError(KindDomain, message)
}

// ErrTransport creates a TransportError.
func ErrTransport(message string, cause error) *Error {
	return NewError(KindTransport, message).WithCause(cause)
}

// KindOf returns the Kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Fault is a transport-level failure: a non-2xx reply or a request that never
// produced one. Body holds whatever the server sent back.
type Fault struct {
	StatusCode int
	Body       []byte
	Message    string
	Err        error
}

func (f *Fault) Error() string {
	if f.Message != "" {
		return f.Message
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return fmt.Sprintf("request failed with status %d", f.StatusCode)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Classify maps any error returned along the submission path into a
// classified *Error. Faults go through the same unwrap procedure as
// successful replies before falling back to their own message, then to
// fallback.
func Classify(err error, fallback string) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var fault *Fault
	if errors.As(err, &fault) {
		return fromFault(fault, fallback)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransport(msgTimeout, err)
	}

	return ErrTransport(fallback, err)
}

func fromFault(f *Fault, fallback string) *Error {
	if len(f.Body) > 0 {
		if obj, err := resolve(f.Body); err == nil {
			if msg, ok := domainMessage(obj); ok {
				return ErrDomain(msg).WithStatusCode(f.StatusCode).WithCause(f)
			}
		}
	}

	if errors.Is(f.Err, context.DeadlineExceeded) {
		return ErrTransport(msgTimeout, f).WithStatusCode(f.StatusCode)
	}
	if f.Message != "" {
		return ErrTransport(f.Message, f).WithStatusCode(f.StatusCode)
	}
	return ErrTransport(fallback, f).WithStatusCode(f.StatusCode)
}
