package bytecode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// DefaultMaxCallDepth bounds nested CALLs.
const DefaultMaxCallDepth = 1024

// MaxSlot is the largest slot index LOAD/STORE accept.
const MaxSlot = 1<<16 - 1

// ErrFaulted is returned when stepping or running an interpreter whose last
// run failed. Load a program to reset it.
var ErrFaulted = errors.New("interpreter faulted")

// State is the interpreter's position in its lifecycle.
type State uint8

const (
	StateReady   State = iota // Program loaded, nothing executed
	StateRunning              // Between the first and last step of a run
	StateHalted               // HALT, RET from the entry function, or end of code
	StateStopped              // Stopped on request at the top of the loop
	StateError                // Run aborted by a fault
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Statistics is the execution report of an interpreter.
type Statistics struct {
	InstructionCount    int
	MaxStackDepth       int
	CurrentStackDepth   int
	FunctionsCalled     int
	GlobalVariableCount int
	Halted              bool
	State               State
}

// Interpreter executes programs. An Interpreter is not safe for concurrent
// use, except for Stop, which may be called from any goroutine.
type Interpreter struct {
	// Loaded program
	functions map[string][]Instruction
	slots     map[string]int // Local slots each function needs

	// Execution state
	stack   []Value
	calls   *CallStack
	current string
	code    []Instruction
	pc      int
	halted  bool
	state   State
	err     error
	stop    atomic.Bool

	// Report
	output           []string
	instructionCount int
	maxStackDepth    int
	functionsCalled  int

	stdout io.Writer
	log    commonlog.Logger

	// Trace logs every step at debug level.
	Trace bool

	// MaxCallDepth bounds active CALL frames; zero means DefaultMaxCallDepth.
	MaxCallDepth int
}

// NewInterpreter creates an interpreter with an empty program that prints to os.Stdout.
func NewInterpreter() *Interpreter {
	vm := &Interpreter{
		stdout: os.Stdout,
		log:    commonlog.GetLogger("noodle.vm"),
	}
	vm.Load(nil)
	return vm
}

// SetStdout sets where PRINT writes. A nil writer keeps output in the buffer only.
func (vm *Interpreter) SetStdout(w io.Writer) {
	vm.stdout = w
}

// Load replaces the program and resets all mutable state: stacks, globals,
// counters, output and the halted flag. The instruction sequences are copied.
func (vm *Interpreter) Load(functions map[string][]Instruction) {
	fns := cloneFunctions(functions)
	slots := make(map[string]int, len(fns))
	globals := 0
	for name, code := range fns {
		slots[name] = slotCount(code, OpLoad, OpStore)
		if n := slotCount(code, OpLoadGlob, OpStoreGlob); n > globals {
			globals = n
		}
	}

	calls := NewCallStack()
	calls.Global().locals = make([]slot, globals)

	vm.functions = fns
	vm.slots = slots
	vm.stack = make([]Value, 0, 64)
	vm.calls = calls
	vm.current = ""
	vm.code = nil
	vm.pc = 0
	vm.halted = false
	vm.state = StateReady
	vm.err = nil
	vm.stop.Store(false)
	vm.output = nil
	vm.instructionCount = 0
	vm.maxStackDepth = 0
	vm.functionsCalled = 0
}

// LoadProgram loads p's functions.
func (vm *Interpreter) LoadProgram(p *Program) {
	vm.Load(p.Functions)
}

// slotCount returns one past the highest slot index used by the given
// opcodes. Malformed operands are ignored here and rejected at execution.
func slotCount(code []Instruction, ops ...Opcode) int {
	n := 0
	for _, in := range code {
		for _, op := range ops {
			if in.Op != op {
				continue
			}
			if v, ok := in.operand(0); ok && v.kind == KindInteger && v.i >= 0 && v.i <= MaxSlot && int(v.i) >= n {
				n = int(v.i) + 1
			}
		}
	}
	return n
}

// Run executes the named function until it halts and returns the value on
// top of the stack, or Null if the stack is empty.
func (vm *Interpreter) Run(name string) (Value, error) {
	return vm.RunContext(context.Background(), name)
}

// RunContext is Run with cooperative cancellation: a cancelled ctx stops the
// run at the top of the loop, like Stop.
func (vm *Interpreter) RunContext(ctx context.Context, name string) (Value, error) {
	if err := vm.Start(name); err != nil {
		return Null, err
	}
	vm.log.Debugf("run %s: %d instructions", name, len(vm.code))

	for !vm.halted {
		if vm.stop.Load() || ctx.Err() != nil {
			vm.stop.Store(false)
			vm.state = StateStopped
			vm.halted = true
			vm.log.Infof("run %s stopped at %s[%d]", name, vm.current, vm.pc)
			break
		}
		if err := vm.Step(); err != nil {
			return Null, err
		}
	}

	vm.log.Debugf("run %s finished (%s): %d instructions executed", name, vm.state, vm.instructionCount)
	return vm.Top(), nil
}

// Start positions the interpreter at the first instruction of the named
// function without executing anything. Globals, output and counters carry
// over from earlier runs; the value stack and call stack start empty.
func (vm *Interpreter) Start(name string) error {
	if vm.state == StateError {
		return fmt.Errorf("%w: %v", ErrFaulted, vm.err)
	}
	code, ok := vm.functions[name]
	if !ok {
		return vm.fail(faultf(ErrFunctionNotFound, "%q", name), nil)
	}

	for vm.calls.PopFrame() != nil {
	}
	vm.stack = vm.stack[:0]
	vm.current = name
	vm.code = code
	vm.pc = 0
	vm.halted = false
	vm.state = StateRunning
	return nil
}

// Stop asks a running interpreter to stop before its next instruction.
// The run ends in StateStopped without an error.
func (vm *Interpreter) Stop() {
	vm.stop.Store(true)
}

// Step executes one instruction. Reaching the end of the entry function
// halts the interpreter; stepping a halted interpreter does nothing.
func (vm *Interpreter) Step() error {
	switch {
	case vm.state == StateError:
		return vm.err
	case vm.halted:
		return nil
	case vm.state != StateRunning:
		return fmt.Errorf("no function started")
	}

	if vm.pc < 0 || vm.pc >= len(vm.code) {
		if vm.pc == len(vm.code) && !vm.calls.InCall() {
			vm.halt()
			return nil
		}
		return vm.fail(faultf(ErrProgramCounterOutOfBounds, "pc %d outside %s (%d instructions)", vm.pc, vm.current, len(vm.code)), nil)
	}

	in := vm.code[vm.pc]
	if vm.Trace {
		vm.log.Debugf("[%s %04d] %-24s sp=%d", vm.current, vm.pc, in, len(vm.stack))
	}

	if err := vm.execute(in); err != nil {
		return vm.fail(err, &in)
	}

	vm.pc++
	vm.instructionCount++
	if len(vm.stack) > vm.maxStackDepth {
		vm.maxStackDepth = len(vm.stack)
	}
	return nil
}

// execute dispatches one instruction. Control-flow opcodes set pc to
// target-1 so the uniform increment in Step lands on the target.
func (vm *Interpreter) execute(in Instruction) error {
	switch in.Op {
	// ============ Stack Operations ============
	case OpNop:
		// Do nothing

	case OpPop:
		// Popping an empty stack is a no-op.
		if len(vm.stack) > 0 {
			vm.stack = vm.stack[:len(vm.stack)-1]
		}

	case OpDup:
		if err := vm.need(in.Op, 1); err != nil {
			return err
		}
		vm.push(vm.stack[len(vm.stack)-1])

	case OpSwap:
		if err := vm.need(in.Op, 2); err != nil {
			return err
		}
		n := len(vm.stack)
		vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]

	// ============ Constants ============
	case OpPush:
		v, ok := in.operand(0)
		if !ok {
			return faultf(ErrInvalidOperand, "PUSH needs a literal")
		}
		vm.push(v)

	// ============ Variables ============
	case OpLoad:
		idx, err := slotOperand(in)
		if err != nil {
			return err
		}
		if vm.calls.InCall() {
			if v, ok := vm.calls.Top().Load(idx); ok {
				vm.push(v)
				return nil
			}
		}
		v, ok := vm.calls.Global().Load(idx)
		if !ok {
			return faultf(ErrUndefinedVariable, "slot %d", idx)
		}
		vm.push(v)

	case OpStore:
		idx, err := slotOperand(in)
		if err != nil {
			return err
		}
		if err := vm.need(in.Op, 1); err != nil {
			return err
		}
		vm.calls.Top().Store(idx, vm.pop())

	case OpLoadGlob:
		idx, err := slotOperand(in)
		if err != nil {
			return err
		}
		v, ok := vm.calls.Global().Load(idx)
		if !ok {
			return faultf(ErrUndefinedVariable, "global slot %d", idx)
		}
		vm.push(v)

	case OpStoreGlob:
		idx, err := slotOperand(in)
		if err != nil {
			return err
		}
		if err := vm.need(in.Op, 1); err != nil {
			return err
		}
		vm.calls.Global().Store(idx, vm.pop())

	// ============ Arithmetic & Comparison ============
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		if err := vm.need(in.Op, 2); err != nil {
			return err
		}
		n := len(vm.stack)
		result, err := binaryOp(in.Op, vm.stack[n-2], vm.stack[n-1])
		if err != nil {
			return err
		}
		vm.stack = vm.stack[:n-2]
		vm.push(result)

	case OpNeg:
		if err := vm.need(in.Op, 1); err != nil {
			return err
		}
		result, err := negate(vm.stack[len(vm.stack)-1])
		if err != nil {
			return err
		}
		vm.stack[len(vm.stack)-1] = result

	// ============ Control Flow ============
	case OpJmp:
		target, err := vm.jumpTarget(in)
		if err != nil {
			return err
		}
		vm.pc = target - 1

	case OpJz, OpJnz:
		if err := vm.need(in.Op, 1); err != nil {
			return err
		}
		cond := vm.pop()
		target, err := vm.jumpTarget(in)
		if err != nil {
			return err
		}
		if cond.Truthy() == (in.Op == OpJnz) {
			vm.pc = target - 1
		}

	// ============ Calls ============
	case OpCall:
		name, ok := in.operand(0)
		if !ok || name.kind != KindString {
			return faultf(ErrInvalidOperand, "CALL needs a function name")
		}
		code, ok := vm.functions[name.s]
		if !ok {
			return faultf(ErrFunctionNotFound, "%q", name.s)
		}
		if vm.calls.Depth()-1 >= vm.maxCallDepth() {
			return faultf(ErrStackOverflow, "call depth %d exceeded calling %q", vm.maxCallDepth(), name.s)
		}
		vm.calls.PushFrame(newFrame(name.s, vm.pc, vm.current, vm.slots[name.s]))
		vm.functionsCalled++
		vm.current = name.s
		vm.code = code
		vm.pc = -1

	case OpRet:
		frame := vm.calls.PopFrame()
		if frame == nil {
			// Returning from the entry function ends the run.
			vm.halt()
			return nil
		}
		vm.current = frame.ReturnTo
		vm.code = vm.functions[frame.ReturnTo]
		vm.pc = frame.ReturnAddress

	// ============ I/O ============
	case OpPrint:
		if err := vm.need(in.Op, 1); err != nil {
			return err
		}
		s := vm.pop().String()
		vm.output = append(vm.output, s)
		if vm.stdout != nil {
			if _, err := fmt.Fprintln(vm.stdout, s); err != nil {
				vm.log.Warningf("print: %v", err)
			}
		}

	case OpHalt:
		vm.halt()

	default:
		return faultf(ErrUnknownOpcode, "tag 0x%02X", byte(in.Op))
	}

	return nil
}

func (vm *Interpreter) halt() {
	vm.halted = true
	vm.state = StateHalted
}

// fail records a fault and returns it as an ExecutionError.
func (vm *Interpreter) fail(err error, in *Instruction) error {
	ee := &ExecutionError{
		Err:         err,
		Instruction: in,
		Function:    vm.current,
		PC:          vm.pc,
		Trace:       vm.calls.StackTrace(),
	}
	var f *fault
	if errors.As(err, &f) {
		ee.Err = f.err
		ee.Message = f.msg
	}
	if in == nil && errors.Is(ee.Err, ErrFunctionNotFound) {
		ee.Function = ""
	}

	vm.state = StateError
	vm.err = ee
	vm.log.Errorf("%s", ee)
	return ee
}

func (vm *Interpreter) maxCallDepth() int {
	if vm.MaxCallDepth > 0 {
		return vm.MaxCallDepth
	}
	return DefaultMaxCallDepth
}

// jumpTarget validates a control-flow operand against the current function.
func (vm *Interpreter) jumpTarget(in Instruction) (int, error) {
	v, ok := in.operand(0)
	if !ok || v.kind != KindInteger {
		return 0, faultf(ErrInvalidJumpTarget, "%s needs an integer target", in.Op)
	}
	if v.i < 0 || v.i >= int64(len(vm.code)) {
		return 0, faultf(ErrInvalidJumpTarget, "%d outside [0, %d)", v.i, len(vm.code))
	}
	return int(v.i), nil
}

func slotOperand(in Instruction) (int, error) {
	v, ok := in.operand(0)
	if !ok || v.kind != KindInteger || v.i < 0 || v.i > MaxSlot {
		return 0, faultf(ErrInvalidOperand, "%s needs a slot index in [0, %d]", in.Op, MaxSlot)
	}
	return int(v.i), nil
}

// Stack helpers

func (vm *Interpreter) need(op Opcode, n int) error {
	if len(vm.stack) < n {
		return faultf(ErrStackUnderflow, "%s needs %d values, stack has %d", op, n, len(vm.stack))
	}
	return nil
}

func (vm *Interpreter) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *Interpreter) pop() Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

// Inspection

// Top returns the value on top of the stack, or Null.
func (vm *Interpreter) Top() Value {
	if len(vm.stack) == 0 {
		return Null
	}
	return vm.stack[len(vm.stack)-1]
}

// Stack returns a copy of the value stack, bottom first.
func (vm *Interpreter) Stack() []Value {
	return append([]Value(nil), vm.stack...)
}

// Globals returns a copy of the bound global slots.
func (vm *Interpreter) Globals() map[int]Value {
	return vm.calls.Global().Bindings()
}

// Locals returns a copy of the innermost call frame's bound slots. At top
// level this is the same as Globals.
func (vm *Interpreter) Locals() map[int]Value {
	return vm.calls.Top().Bindings()
}

// StackTrace returns the active call frames, outermost first.
func (vm *Interpreter) StackTrace() []string {
	return vm.calls.StackTrace()
}

// Position returns the current function and program counter.
func (vm *Interpreter) Position() (string, int) {
	return vm.current, vm.pc
}

// Current returns the next instruction to execute, if any.
func (vm *Interpreter) Current() (Instruction, bool) {
	if vm.pc < 0 || vm.pc >= len(vm.code) {
		return Instruction{}, false
	}
	return vm.code[vm.pc], true
}

// State returns the lifecycle state.
func (vm *Interpreter) State() State {
	return vm.state
}

// Err returns the fault that ended the last run, if any.
func (vm *Interpreter) Err() error {
	return vm.err
}

// Output returns a snapshot of printed lines in emission order.
func (vm *Interpreter) Output() []string {
	return append([]string(nil), vm.output...)
}

// ClearOutput empties the output buffer.
func (vm *Interpreter) ClearOutput() {
	vm.output = nil
}

// Statistics returns the execution report.
func (vm *Interpreter) Statistics() Statistics {
	return Statistics{
		InstructionCount:    vm.instructionCount,
		MaxStackDepth:       vm.maxStackDepth,
		CurrentStackDepth:   len(vm.stack),
		FunctionsCalled:     vm.functionsCalled,
		GlobalVariableCount: vm.calls.Global().BoundCount(),
		Halted:              vm.halted,
		State:               vm.state,
	}
}
