package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"faultline/models"
)

// TracedError is an error value that carries a type name and a stack trace.
type TracedError struct {
	Name    string
	Message string
	Stack   string
	cause   error
}

func (e *TracedError) Error() string {
	return e.Message
}

func (e *TracedError) Unwrap() error {
	return e.cause
}

// NewTracedError wraps err with the caller's stack.
func NewTracedError(err error) *TracedError {
	if err == nil {
		return nil
	}
	var traced *TracedError
	if errors.As(err, &traced) {
		return traced
	}
	name := ErrorTypeName(err)
	return &TracedError{
		Name:    name,
		Message: err.Error(),
		Stack:   name + ": " + err.Error() + "\n" + captureStack(2),
		cause:   err,
	}
}

// ReconstructError rebuilds an error value from a reported message and an
// optional stack. A missing stack stays empty.
func ReconstructError(message, stack string) *TracedError {
	name := "Error"
	if header, ok := models.StackHeaderName(firstLine(stack)); ok {
		name = header
	}
	if strings.TrimSpace(stack) == "" {
		stack = ""
	}
	return &TracedError{Name: name, Message: message, Stack: stack}
}

// ErrorTypeName names the dynamic type of err, without pointer or package
// qualifiers.
func ErrorTypeName(err error) string {
	if err == nil {
		return ""
	}
	var traced *TracedError
	if errors.As(err, &traced) && traced.Name != "" {
		return traced.Name
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	case errors.Is(err, context.Canceled):
		return "AbortError"
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return UnknownErrorType
	}
	return t.Name()
}

// captureStack walks the call stack starting skip frames above itself.
func captureStack(skip int) string {
	const maxDepth = 10
	var b strings.Builder

	for i := skip; i < skip+maxDepth; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		funcName := "unknown"
		if fn := runtime.FuncForPC(pc); fn != nil {
			funcName = fn.Name()
		}

		fmt.Fprintf(&b, "    at %s (%s:%d)\n", funcName, file, line)
	}

	return strings.TrimRight(b.String(), "\n")
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
