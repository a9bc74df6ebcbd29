package bytecode

import (
	"errors"
	"fmt"
	"strings"
)

// Run faults. Every error returned from a run wraps exactly one of these,
// so callers can classify with errors.Is.
var (
	ErrFunctionNotFound          = errors.New("function not found")
	ErrProgramCounterOutOfBounds = errors.New("program counter out of bounds")
	ErrStackUnderflow            = errors.New("stack underflow")
	ErrStackOverflow             = errors.New("call stack overflow")
	ErrUnknownOpcode             = errors.New("unknown opcode")
	ErrInvalidJumpTarget         = errors.New("invalid jump target")
	ErrInvalidOperand            = errors.New("invalid operand")
	ErrTypeMismatch              = errors.New("type mismatch")
	ErrDivisionByZero            = errors.New("division by zero")
	ErrUndefinedVariable         = errors.New("undefined variable")
)

// ErrEncoding is wrapped by every codec failure.
var ErrEncoding = errors.New("encoding error")

// ExecutionError describes a fault that aborted a run.
type ExecutionError struct {
	Err         error        // One of the Err* sentinels
	Message     string       // Detail for humans
	Instruction *Instruction // Offending instruction, nil if none was fetched
	Function    string       // Function executing when the fault occurred
	PC          int          // Index of the offending instruction
	Trace       []string     // Call stack, outermost first
}

func (e *ExecutionError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Err.Error())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Instruction != nil {
		fmt.Fprintf(&sb, " (at %s[%d]: %s)", e.Function, e.PC, e.Instruction)
	} else if e.Function != "" {
		fmt.Fprintf(&sb, " (in %s)", e.Function)
	}
	return sb.String()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// fault is the error a handler returns; the loop decorates it with
// position information before surfacing an ExecutionError.
type fault struct {
	err error
	msg string
}

func (f *fault) Error() string { return f.err.Error() + ": " + f.msg }
func (f *fault) Unwrap() error { return f.err }

func faultf(sentinel error, format string, args ...any) error {
	return &fault{err: sentinel, msg: fmt.Sprintf(format, args...)}
}

func encodingErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEncoding, fmt.Sprintf(format, args...))
}
