package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseSplit,
				Kind:   KindUnsupported,
				Func:   "fib",
				Path:   []string{"body", "3"},
				Detail: "opcode 0x28",
			},
			contains: []string{"[split]", "unsupported", "in fib", "body.3", "opcode 0x28"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseGraph,
				Kind:  KindMalformed,
			},
			contains: []string{"[graph]", "malformed"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseParse,
				Kind:   KindMalformed,
				Detail: "code section",
				Cause:  errors.New("unexpected EOF"),
			},
			contains: []string{"[parse]", "code section", "caused by", "unexpected EOF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseEmit, KindMalformed, cause, "emit")

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := DanglingCall("f0", 7, 3)

	if !errors.Is(err, ErrMalformed) {
		t.Error("dangling call should match ErrMalformed")
	}
	if !errors.Is(err, &Error{Phase: PhaseGraph, Kind: KindMalformed}) {
		t.Error("should match same phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseParse, Kind: KindMalformed}) {
		t.Error("should not match different phase")
	}
	if errors.Is(err, ErrCapacity) {
		t.Error("should not match different kind")
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("compile: %w", Capacity(PhaseSplit, "block ids", 10, 4))
	if !IsCapacity(wrapped) {
		t.Error("IsCapacity should see through fmt wrapping")
	}
	if IsMalformed(wrapped) || IsUnsupported(wrapped) {
		t.Error("capacity error matched another class")
	}
	if !IsMalformed(TypeMismatch(PhaseProgram, "f", "i32", "i64")) {
		t.Error("type mismatch is a malformed-input error")
	}
	if !IsUnsupported(Unsupported(PhaseSplit, "f", "memory load")) {
		t.Error("IsUnsupported")
	}
	if IsMalformed(nil) {
		t.Error("nil is not malformed")
	}
}

func TestFatal(t *testing.T) {
	if Unsupported(PhaseEmit, "f", "x").Fatal() {
		t.Error("unsupported errors are function-local")
	}
	if !Malformed(PhaseGraph, "x").Fatal() {
		t.Error("malformed errors are fatal")
	}
	if !Capacity(PhaseLayout, "frame", 5, 1).Fatal() {
		t.Error("capacity errors are fatal")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseLayout, KindCapacity).
		Func("deep").
		Path("frame").
		Value(99).
		Detail("needs %d words", 99).
		Build()

	if err.Func != "deep" || err.Detail != "needs 99 words" || err.Value != 99 {
		t.Errorf("unexpected builder result: %+v", err)
	}
	if len(err.Path) != 1 || err.Path[0] != "frame" {
		t.Errorf("path = %v", err.Path)
	}
}
