// Package errors provides the structured error codes used by docqa.
//
// An Errno carries a unique AABBCCC code (service, category, sequence), an
// English and a Chinese message, and the HTTP and gRPC statuses it maps to.
// Registered values are sentinels: derive per-call variants with WithCause or
// WithMessage and compare with errors.Is, which matches on code.
//
//	return errors.ErrJobNotFound.WithMessagef("ingestion job %s not found", id)
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/grpc/codes"
)

// Errno is a coded error with localized messages.
type Errno struct {
	Code      int        `json:"code"`
	HTTP      int        `json:"-"`
	GRPCCode  codes.Code `json:"-"`
	MessageEN string     `json:"message"`
	MessageZH string     `json:"message_zh,omitempty"`

	cause error
}

// New creates an unregistered Errno.
func New(code int, httpStatus int, grpcCode codes.Code, messageEN, messageZH string) *Errno {
	return &Errno{Code: code, HTTP: httpStatus, GRPCCode: grpcCode, MessageEN: messageEN, MessageZH: messageZH}
}

func (e *Errno) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("errno %d: %s: %v", e.Code, e.MessageEN, e.cause)
	}
	return fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
}

func (e *Errno) Unwrap() error {
	return e.cause
}

// Is matches any Errno with the same code.
func (e *Errno) Is(target error) bool {
	t, ok := target.(*Errno)
	return ok && e.Code == t.Code
}

func (e *Errno) clone() *Errno {
	c := *e
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *Errno) WithCause(cause error) *Errno {
	c := e.clone()
	c.cause = cause
	return c
}

// WithMessage returns a copy with the English message replaced.
func (e *Errno) WithMessage(msg string) *Errno {
	c := e.clone()
	c.MessageEN = msg
	return c
}

// WithMessagef is WithMessage with formatting.
func (e *Errno) WithMessagef(format string, args ...any) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithMessageZH returns a copy with the Chinese message replaced.
func (e *Errno) WithMessageZH(msg string) *Errno {
	c := e.clone()
	c.MessageZH = msg
	return c
}

// Message picks the message for an Accept-Language value. Any tag starting
// with "zh" selects the Chinese message when one is set.
func (e *Errno) Message(lang string) string {
	if e.MessageZH != "" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), "zh") {
		return e.MessageZH
	}
	return e.MessageEN
}

// HTTPStatus defaults to 500 when unset.
func (e *Errno) HTTPStatus() int {
	if e.HTTP == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTP
}

// GRPCStatus defaults to Internal when unset.
func (e *Errno) GRPCStatus() codes.Code {
	if e.GRPCCode == codes.OK {
		return codes.Internal
	}
	return e.GRPCCode
}

// Format supports %s, %q and %v; %+v adds statuses, the Chinese message and
// the cause chain.
func (e *Errno) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+'):
		_, _ = fmt.Fprintf(s, "errno %d [HTTP %d, gRPC %s]: %s", e.Code, e.HTTP, e.GRPCCode, e.MessageEN)
		if e.MessageZH != "" {
			_, _ = fmt.Fprintf(s, " (%s)", e.MessageZH)
		}
		if e.cause != nil {
			_, _ = fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
		}
	case verb == 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	default:
		_, _ = fmt.Fprint(s, e.Error())
	}
}

var (
	registryMu sync.RWMutex
	registry   = make(map[int]*Errno)
)

// Register records e and returns it. A duplicate code panics at init.
func Register(e *Errno) *Errno {
	registryMu.Lock()
	defer registryMu.Unlock()

	if prev, ok := registry[e.Code]; ok {
		panic(fmt.Sprintf("errno code %d already registered: %s", e.Code, prev.MessageEN))
	}
	registry[e.Code] = e
	return e
}

// Lookup returns the registered Errno for code.
func Lookup(code int) (*Errno, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[code]
	return e, ok
}

// GetAllRegistered returns a copy of the registry.
func GetAllRegistered() map[int]*Errno {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return maps.Clone(registry)
}

// FromError returns the outermost Errno in err's chain. Deadline errors map
// to ErrTimeout and anything else to ErrInternal.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if stderrors.As(err, &e) {
		return e
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout.WithCause(err)
	}
	return ErrInternal.WithCause(err)
}

// IsCode reports whether err's chain carries an Errno with code.
func IsCode(err error, code int) bool {
	return GetCode(err) == code
}

// GetCode returns the code of the outermost Errno, or -1.
func GetCode(err error) int {
	var e *Errno
	if stderrors.As(err, &e) {
		return e.Code
	}
	return -1
}
