package failure

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindValidation is bad input detected before anything was sent.
	KindValidation Kind = iota + 1
	// KindNotFound means the target id is absent on the service.
	KindNotFound
	// KindTransport covers network errors, timeouts and non-2xx statuses.
	KindTransport
	// KindServer is a success=false envelope carrying the service's message.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	}
	return "unknown"
}

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrTransport  = errors.New("transport error")
	ErrServer     = errors.New("server error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindTransport:
		return ErrTransport
	case KindServer:
		return ErrServer
	}
	return nil
}

// Failure is the single error type catalog operations return for expected
// conditions. errors.Is matches it against the Err* sentinel of its kind as
// well as against the wrapped cause.
type Failure struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Op == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Op, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Is(target error) bool {
	return target != nil && target == f.Kind.sentinel()
}

func New(kind Kind, op, message string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Message: message, Err: err}
}

func Validation(op string, err error) *Failure {
	return New(KindValidation, op, err.Error(), err)
}

func NotFound(op, message string) *Failure {
	if message == "" {
		message = "record not found"
	}
	return New(KindNotFound, op, message, nil)
}

func Transport(op string, err error) *Failure {
	return New(KindTransport, op, err.Error(), err)
}

func Server(op, message string) *Failure {
	if message == "" {
		message = "request failed"
	}
	return New(KindServer, op, message, nil)
}

// As extracts the Failure from err, wrapping anything else as a transport
// failure so callers always get a kind.
func As(op string, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Transport(op, err)
}

func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
