package manager

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Every lifecycle failure is a *ServiceError whose Kind is one
// of these, so callers match with errors.Is.
var (
	ErrNotFound        = errors.New("service not found")
	ErrConstructFailed = errors.New("service construction failed")
	ErrPreInitFailed   = errors.New("service pre-init failed")
	ErrInitFailed      = errors.New("service init failed")
	ErrState           = errors.New("service state error")
	ErrShutdownHook    = errors.New("service shutdown hook failed")

	ErrStopped        = errors.New("orchestrator stopped")
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

// ServiceError carries the failing service and the underlying cause.
type ServiceError struct {
	Kind      error
	ServiceID string
	Cause     error
	Detail    string
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	b.WriteString(": ")
	b.WriteString(e.ServiceID)
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ServiceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newServiceError(kind error, id string, cause error) *ServiceError {
	return &ServiceError{Kind: kind, ServiceID: id, Cause: cause}
}

func notFound(id string, known []string) *ServiceError {
	sorted := append([]string(nil), known...)
	sort.Strings(sorted)
	return &ServiceError{
		Kind:      ErrNotFound,
		ServiceID: id,
		Detail:    "registered: " + strings.Join(sorted, ", "),
	}
}

func stateError(id, format string, args ...any) *ServiceError {
	return &ServiceError{Kind: ErrState, ServiceID: id, Detail: fmt.Sprintf(format, args...)}
}

// PanicError is the cause recorded when a guarded hook panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// guard runs fn and turns a panic into a *PanicError.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
