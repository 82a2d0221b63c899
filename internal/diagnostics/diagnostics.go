// Package diagnostics implements the error taxonomy and rendering described
// in spec.md §7: lexical/parse errors, IR invariant violations, runtime
// type/arity errors, and fatal resource errors.
package diagnostics

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies a diagnostic per spec.md §7.
type Kind string

const (
	KindSyntax  Kind = "SyntaxError"
	KindIR      Kind = "InvariantError"
	KindRuntime Kind = "RuntimeError"
	KindFatal   Kind = "FatalError"
)

// Location pinpoints a diagnostic in some registered source buffer.
type Location struct {
	File   string
	Row    int
	Col    int
	Source string // the offending source line, for caret rendering
}

// Frame is one entry of a runtime call stack, used for backtraces.
type Frame struct {
	Function string
	Location Location
}

// Error is the runtime's structured diagnostic type. It implements `error`
// and renders the way the teacher's SentraError does: type/message, location,
// source + caret, call stack.
type Error struct {
	Kind    Kind
	Message string
	Loc     Location
	Stack   []Frame
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", e.Kind, e.Message)
	if e.Loc.File != "" {
		fmt.Fprintf(&sb, "  at %s:%d:%d\n", e.Loc.File, e.Loc.Row, e.Loc.Col)
		if e.Loc.Source != "" {
			fmt.Fprintf(&sb, "\n  %d | %s\n", e.Loc.Row, e.Loc.Source)
			pad := strings.Repeat(" ", len(fmt.Sprintf("%d | ", e.Loc.Row)))
			sb.WriteString("  " + pad)
			if e.Loc.Col > 0 {
				sb.WriteString(strings.Repeat(" ", e.Loc.Col-1))
			}
			sb.WriteString("^\n")
		}
	}
	if len(e.Stack) > 0 {
		sb.WriteString("\nCall Stack:\n")
		for _, f := range e.Stack {
			if f.Function != "" {
				fmt.Fprintf(&sb, "  at %s (%s:%d:%d)\n", f.Function, f.Location.File, f.Location.Row, f.Location.Col)
			} else {
				fmt.Fprintf(&sb, "  at %s:%d:%d\n", f.Location.File, f.Location.Row, f.Location.Col)
			}
		}
	}
	return sb.String()
}

// WithSource attaches the offending source line for caret rendering.
func (e *Error) WithSource(line string) *Error {
	e.Loc.Source = line
	return e
}

// WithStack attaches a call stack (innermost frame first).
func (e *Error) WithStack(stack []Frame) *Error {
	e.Stack = stack
	return e
}

// NewSyntax builds a lexical/parse error (spec.md §7 class 1).
func NewSyntax(message, file string, row, col int) *Error {
	return &Error{Kind: KindSyntax, Message: message, Loc: Location{File: file, Row: row, Col: col}}
}

// NewRuntime builds a recoverable runtime type/arity error (class 3).
func NewRuntime(message, file string, row, col int) *Error {
	return &Error{Kind: KindRuntime, Message: message, Loc: Location{File: file, Row: row, Col: col}}
}

// Fatal wraps an IR-invariant or resource violation (classes 2 and 4) with a
// Go stack trace via pkg/errors, since these are internal bugs the host is
// expected to abort on rather than recover from.
func Fatal(kind Kind, message string) error {
	return errors.Wrap(&Error{Kind: kind, Message: message}, "lucent: fatal")
}

// Sink is the logging sink spec.md §1 names as one of the core's external
// inputs. A host supplies one; tests can record into a slice.
type Sink interface {
	Log(level, msg string, fields ...any)
}

// DiscardSink drops everything; lucent.NewRoot and lucent.ParseModule fall
// back to it when the embedder passes a nil sink.
type DiscardSink struct{}

func (DiscardSink) Log(string, string, ...any) {}

// RecordingSink accumulates log lines for assertions in tests.
type RecordingSink struct {
	Lines []string
}

func (s *RecordingSink) Log(level, msg string, fields ...any) {
	line := fmt.Sprintf("[%s] %s", level, msg)
	for _, f := range fields {
		line += fmt.Sprintf(" %v", f)
	}
	s.Lines = append(s.Lines, line)
}
