package bytecode

// GlobalFrameName names the permanent bottom frame.
const GlobalFrameName = "<global>"

// slot is one binding; set distinguishes an unbound slot from a stored Null.
type slot struct {
	value Value
	set   bool
}

// CallFrame is an active function invocation.
type CallFrame struct {
	FunctionName  string
	ReturnAddress int    // Caller's pc at the CALL instruction
	ReturnTo      string // Caller's function name

	locals []slot
}

// newFrame creates a frame with room for n local slots.
func newFrame(name string, returnAddress int, returnTo string, n int) *CallFrame {
	return &CallFrame{
		FunctionName:  name,
		ReturnAddress: returnAddress,
		ReturnTo:      returnTo,
		locals:        make([]slot, n),
	}
}

// Load returns the value bound to slot i.
func (f *CallFrame) Load(i int) (Value, bool) {
	if i < 0 || i >= len(f.locals) || !f.locals[i].set {
		return Null, false
	}
	return f.locals[i].value, true
}

// Store binds slot i, growing the slot array if needed.
func (f *CallFrame) Store(i int, v Value) {
	if i >= len(f.locals) {
		grown := make([]slot, i+1)
		copy(grown, f.locals)
		f.locals = grown
	}
	f.locals[i] = slot{value: v, set: true}
}

// BoundCount returns how many slots hold a value.
func (f *CallFrame) BoundCount() int {
	n := 0
	for _, s := range f.locals {
		if s.set {
			n++
		}
	}
	return n
}

// Bindings returns a copy of the bound slots keyed by index.
func (f *CallFrame) Bindings() map[int]Value {
	out := make(map[int]Value)
	for i, s := range f.locals {
		if s.set {
			out[i] = s.value
		}
	}
	return out
}

// CallStack is the ordered sequence of frames. Index 0 is the global frame
// and is never popped, so the stack is never empty.
type CallStack struct {
	frames []*CallFrame
}

// NewCallStack returns a stack holding only the global frame.
func NewCallStack() *CallStack {
	cs := &CallStack{frames: make([]*CallFrame, 1, 16)}
	cs.frames[0] = newFrame(GlobalFrameName, 0, "", 0)
	return cs
}

// PushFrame adds a frame on top.
func (cs *CallStack) PushFrame(f *CallFrame) {
	cs.frames = append(cs.frames, f)
}

// PopFrame removes and returns the top frame. With only the global frame
// left it does nothing and returns nil.
func (cs *CallStack) PopFrame() *CallFrame {
	if len(cs.frames) == 1 {
		return nil
	}
	top := cs.frames[len(cs.frames)-1]
	cs.frames[len(cs.frames)-1] = nil
	cs.frames = cs.frames[:len(cs.frames)-1]
	return top
}

// Top returns the innermost frame.
func (cs *CallStack) Top() *CallFrame {
	return cs.frames[len(cs.frames)-1]
}

// Global returns the permanent global frame.
func (cs *CallStack) Global() *CallFrame {
	return cs.frames[0]
}

// Depth returns the number of frames, including the global frame.
func (cs *CallStack) Depth() int {
	return len(cs.frames)
}

// InCall reports whether any frame beyond the global frame is active.
func (cs *CallStack) InCall() bool {
	return len(cs.frames) > 1
}

// StackTrace returns frame names, outermost first.
func (cs *CallStack) StackTrace() []string {
	names := make([]string, len(cs.frames))
	for i, f := range cs.frames {
		names[i] = f.FunctionName
	}
	return names
}
