package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/chazu/noodle/pkg/bytecode"
)

const historyFile = ".noodle_history"

func newDebugCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "debug [files...]",
		Short: "Step through a program interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProgram(args, opts.stored)
			if err != nil {
				return err
			}
			entry := opts.entry
			if entry == "" {
				entry = p.Entry
			}

			d := newDebugger(a.newInterpreter(opts), p, entry, cmd.OutOrStdout())
			if err := d.restart(); err != nil {
				return err
			}
			return d.repl()
		},
	}

	cmd.Flags().StringVarP(&opts.entry, "entry", "e", "", "function to run (default: the program's entry)")
	cmd.Flags().StringVarP(&opts.stored, "program", "p", "", "debug a program from the store")
	return cmd
}

// debugger drives an interpreter one instruction at a time.
type debugger struct {
	vm     *bytecode.Interpreter
	prog   *bytecode.Program
	entry  string
	out    io.Writer
	breaks map[string]map[int]bool
	last   string
}

func newDebugger(vm *bytecode.Interpreter, p *bytecode.Program, entry string, out io.Writer) *debugger {
	vm.SetStdout(out)
	return &debugger{
		vm:     vm,
		prog:   p,
		entry:  entry,
		out:    out,
		breaks: make(map[string]map[int]bool),
	}
}

func (d *debugger) repl() error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}
	defer func() {
		if histPath == "" {
			return
		}
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintf(d.out, "debugging %s (%d functions). Type help for commands.\n", d.entry, len(d.prog.Functions))
	d.where()

	for {
		line, err := ln.Prompt("(noodle) ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(d.out)
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		if d.exec(line) {
			return nil
		}
	}
}

// exec runs one debugger command and reports whether to quit. An empty
// line repeats the previous command.
func (d *debugger) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		if d.last == "" {
			return false
		}
		fields = strings.Fields(d.last)
	} else {
		d.last = line
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "s", "step":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				fmt.Fprintf(d.out, "bad step count %q\n", args[0])
				return false
			}
			n = v
		}
		for i := 0; i < n && d.live(); i++ {
			if !d.step() {
				break
			}
		}
		d.where()

	case "c", "continue":
		for d.live() {
			if !d.step() {
				break
			}
			fn, pc := d.vm.Position()
			if d.breaks[fn][pc] {
				fmt.Fprintf(d.out, "breakpoint %s:%d\n", fn, pc)
				break
			}
		}
		d.where()

	case "b", "break":
		if len(args) != 1 {
			fmt.Fprintln(d.out, "usage: break [function:]index")
			return false
		}
		fn, pc, err := d.parseLocation(args[0])
		if err != nil {
			fmt.Fprintln(d.out, err)
			return false
		}
		if d.breaks[fn] == nil {
			d.breaks[fn] = make(map[int]bool)
		}
		d.breaks[fn][pc] = true
		fmt.Fprintf(d.out, "breakpoint set at %s:%d\n", fn, pc)

	case "w", "where", "l", "list":
		d.where()

	case "stack":
		stack := d.vm.Stack()
		if len(stack) == 0 {
			fmt.Fprintln(d.out, "stack is empty")
		}
		for i := len(stack) - 1; i >= 0; i-- {
			fmt.Fprintf(d.out, "  [%d] %#v\n", i, stack[i])
		}

	case "bt", "frames":
		trace := d.vm.StackTrace()
		for i := len(trace) - 1; i >= 0; i-- {
			fmt.Fprintf(d.out, "  #%d %s\n", len(trace)-1-i, trace[i])
		}

	case "globals":
		d.printSlots(d.vm.Globals())

	case "locals":
		d.printSlots(d.vm.Locals())

	case "output":
		for _, line := range d.vm.Output() {
			fmt.Fprintln(d.out, line)
		}

	case "stats":
		printStats(d.out, d.vm.Statistics(), d.vm.Top())

	case "restart":
		if err := d.restart(); err != nil {
			fmt.Fprintln(d.out, err)
			return false
		}
		d.where()

	case "h", "help":
		fmt.Fprint(d.out, debugHelp)

	case "q", "quit", "exit":
		return true

	default:
		fmt.Fprintf(d.out, "unknown command %q. Type help for commands.\n", cmd)
	}
	return false
}

const debugHelp = `  step [n]      execute n instructions (s)
  continue      run to a breakpoint or the end (c)
  break [f:]i   stop before instruction i of function f (b)
  where         show the next instruction (w)
  stack         value stack, top first
  frames        call frames, innermost first (bt)
  globals       bound global slots
  locals        bound slots of the current frame
  output        lines printed so far
  stats         execution statistics
  restart       reload the program and start over
  quit          leave the debugger (q)
`

// restart reloads the program, which also clears a fault.
func (d *debugger) restart() error {
	d.vm.LoadProgram(d.prog)
	return d.vm.Start(d.entry)
}

// live reports whether the program can take another step, explaining why
// not when it cannot.
func (d *debugger) live() bool {
	switch d.vm.State() {
	case bytecode.StateHalted, bytecode.StateStopped:
		fmt.Fprintf(d.out, "program %s; restart to run again\n", d.vm.State())
		return false
	case bytecode.StateError:
		fmt.Fprintf(d.out, "program faulted: %v\n", d.vm.Err())
		return false
	}
	return true
}

func (d *debugger) step() bool {
	if err := d.vm.Step(); err != nil {
		fmt.Fprintf(d.out, "fault: %v\n", err)
		return false
	}
	return d.vm.State() == bytecode.StateRunning
}

func (d *debugger) where() {
	fn, pc := d.vm.Position()
	in, ok := d.vm.Current()
	switch {
	case d.vm.State() == bytecode.StateHalted:
		fmt.Fprintf(d.out, "halted, top of stack %#v\n", d.vm.Top())
	case !ok:
		fmt.Fprintf(d.out, "%s:%d  <end of code>\n", fn, pc)
	default:
		fmt.Fprintf(d.out, "%s:%d  %s\n", fn, pc, in)
	}
}

func (d *debugger) parseLocation(s string) (string, int, error) {
	fn, _ := d.vm.Position()
	idx := s
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		fn, idx = s[:i], s[i+1:]
	}
	code, err := d.prog.Lookup(fn)
	if err != nil {
		return "", 0, err
	}
	pc, err := strconv.Atoi(idx)
	if err != nil || pc < 0 || pc >= len(code) {
		return "", 0, fmt.Errorf("no instruction %q in %s", idx, fn)
	}
	return fn, pc, nil
}

func (d *debugger) printSlots(slots map[int]bytecode.Value) {
	if len(slots) == 0 {
		fmt.Fprintln(d.out, "no bound slots")
		return
	}
	idx := make([]int, 0, len(slots))
	for i := range slots {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		fmt.Fprintf(d.out, "  %d = %#v\n", i, slots[i])
	}
}
