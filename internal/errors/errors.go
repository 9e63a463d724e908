// Package errors defines muF's diagnostic taxonomy: one error type per
// pipeline stage, each carrying a source location and an optional
// caret-pointed source line, per spec.md §6.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind distinguishes which pipeline stage raised the error.
type Kind string

const (
	SyntaxError  Kind = "SyntaxError"  // lexer/parser
	CompileError Kind = "CompileError" // code generator
	RuntimeError Kind = "RuntimeError" // virtual machine
)

// SourceLocation is a file/line/column triple.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// StackFrame is one call-stack entry attached to a runtime error, reported
// when the VM unwinds frames after a trap.
type StackFrame struct {
	Function string
	Line     int
}

// MufError is a diagnostic with a location, optional source-line rendering
// and optional call stack. Construction sites wrap it with
// github.com/pkg/errors.WithStack so %+v at the top level prints the Go
// call stack that raised it, independent of the muF source stack carried
// here.
type MufError struct {
	Kind      Kind
	Message   string
	Location  SourceLocation
	Source    string
	CallStack []StackFrame
}

// Error renders the type, message, location and a caret under the offending
// column, followed by a call stack if one was attached.
func (e *MufError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", e.Kind, e.Message)
	if e.Location.File != "" {
		fmt.Fprintf(&sb, "  at %s:%d:%d\n", e.Location.File, e.Location.Line, e.Location.Column)
		if e.Source != "" {
			prefix := fmt.Sprintf("  %d | ", e.Location.Line)
			fmt.Fprintf(&sb, "\n%s%s\n", prefix, e.Source)
			sb.WriteString(strings.Repeat(" ", len(prefix)))
			if e.Location.Column > 0 {
				sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			}
			sb.WriteString("^\n")
		}
	}
	if len(e.CallStack) > 0 {
		sb.WriteString("\ncall stack:\n")
		for _, f := range e.CallStack {
			fmt.Fprintf(&sb, "  at %s:%d\n", f.Function, f.Line)
		}
	}
	return sb.String()
}

// New builds a MufError and wraps it with a Go-level stack trace via
// pkg/errors, so the binaries' top-level handler can print %+v in verbose
// mode without every call site threading its own trace.
func New(kind Kind, message, file string, line, column int) error {
	return errors.WithStack(&MufError{
		Kind:    kind,
		Message: message,
		Location: SourceLocation{
			File:   file,
			Line:   line,
			Column: column,
		},
	})
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, file string, line, column int, format string, args ...interface{}) error {
	return New(kind, fmt.Sprintf(format, args...), file, line, column)
}

// WithSource attaches the offending source line to err, if err (or one of
// the errors it wraps) is a *MufError.
func WithSource(err error, source string) error {
	if me := asMufError(err); me != nil {
		me.Source = source
	}
	return err
}

// WithCallStack attaches a VM call stack to err for runtime traps.
func WithCallStack(err error, stack []StackFrame) error {
	if me := asMufError(err); me != nil {
		me.CallStack = stack
	}
	return err
}

func asMufError(err error) *MufError {
	var me *MufError
	if errors.As(err, &me) {
		return me
	}
	return nil
}
