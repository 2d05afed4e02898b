package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the pipeline the error occurred
type Phase string

const (
	PhaseParse   Phase = "parse"   // wasm binary decoding
	PhaseProgram Phase = "program" // function record construction
	PhaseGraph   Phase = "graph"   // call graph construction
	PhaseAnalyze Phase = "analyze" // recursion analysis
	PhaseSplit   Phase = "split"   // child block splitting
	PhaseLayout  Phase = "layout"  // frame layout
	PhaseEmit    Phase = "emit"    // shader IR emission
	PhaseRuntime Phase = "runtime" // reference execution
)

// Kind categorizes the error
type Kind string

const (
	// compile time
	KindMalformed    Kind = "malformed"
	KindTypeMismatch Kind = "type_mismatch"
	KindUnsupported  Kind = "unsupported"
	KindCapacity     Kind = "capacity"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"

	// run time
	KindTrap          Kind = "trap"
	KindStackOverflow Kind = "stack_overflow"
	KindInvalidBlock  Kind = "invalid_block"
	KindHost          Kind = "host"
	KindStepLimit     Kind = "step_limit"
)

// Error is the structured error type used throughout the compiler
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Func   string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Func != "" {
		b.WriteString(" in ")
		b.WriteString(e.Func)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase != "" && t.Phase != e.Phase {
			return false
		}
		return e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error must abort the whole module.
// Unsupported constructs are localized to one function and may be skipped.
func (e *Error) Fatal() bool {
	return e.Kind != KindUnsupported
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Func sets the offending function name
func (b *Builder) Func(name string) *Builder {
	b.err.Func = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Malformed creates a malformed-module error
func Malformed(phase Phase, format string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMalformed,
		Detail: fmt.Sprintf(format, args...),
	}
}

// TypeMismatch creates a type mismatch error between a declared and a used value type
func TypeMismatch(phase Phase, fn string, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Func:   fn,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// DanglingCall creates an error for a call to a function index that does not exist
func DanglingCall(fn string, target uint32, count int) *Error {
	return &Error{
		Phase:  PhaseGraph,
		Kind:   KindMalformed,
		Func:   fn,
		Detail: fmt.Sprintf("call target %d out of range (%d functions)", target, count),
		Value:  target,
	}
}

// Unsupported creates a named unsupported-construct error localized to fn
func Unsupported(phase Phase, fn, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Func:   fn,
		Detail: what,
	}
}

// Capacity creates a resource exhaustion error
func Capacity(phase Phase, what string, need, limit uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCapacity,
		Detail: fmt.Sprintf("%s requires %d, limit %d", what, need, limit),
		Value:  need,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindMalformed,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Sentinels for errors.Is matching regardless of phase.
var (
	ErrMalformed     = &Error{Kind: KindMalformed}
	ErrUnsupported   = &Error{Kind: KindUnsupported}
	ErrCapacity      = &Error{Kind: KindCapacity}
	ErrTrap          = &Error{Kind: KindTrap}
	ErrStackOverflow = &Error{Kind: KindStackOverflow}
	ErrInvalidBlock  = &Error{Kind: KindInvalidBlock}
)

// IsMalformed reports whether err is a malformed-module error
func IsMalformed(err error) bool {
	return asKind(err, KindMalformed) || asKind(err, KindTypeMismatch)
}

// IsUnsupported reports whether err is an unsupported-construct error
func IsUnsupported(err error) bool {
	return asKind(err, KindUnsupported)
}

// IsCapacity reports whether err is a resource exhaustion error
func IsCapacity(err error) bool {
	return asKind(err, KindCapacity)
}

func asKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
