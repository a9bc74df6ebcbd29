package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chazu/noodle/pkg/bytecode"
)

type runOptions struct {
	entry        string
	stored       string
	trace        bool
	stats        bool
	quiet        bool
	maxCallDepth int
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Run a program",
		Example: `  noodle run hello.nasm
  noodle run --stats build/app.nbc
  noodle run --program hello
  noodle run                      # sources from noodle.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProgram(args, opts.stored)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, p, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.entry, "entry", "e", "", "function to run (default: the program's entry)")
	f.StringVarP(&opts.stored, "program", "p", "", "run a program from the store")
	f.BoolVar(&opts.trace, "trace", false, "log every instruction (needs -vv)")
	f.BoolVar(&opts.stats, "stats", false, "print execution statistics")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "do not echo PRINT output")
	f.IntVar(&opts.maxCallDepth, "max-call-depth", 0, "maximum nested CALLs (default from noodle.toml)")
	return cmd
}

// run executes p and reports the outcome. A fault is returned after its
// call stack has been written to errOut.
func (a *app) run(ctx context.Context, p *bytecode.Program, opts *runOptions, out, errOut io.Writer) error {
	vm := a.newInterpreter(opts)
	if opts.quiet || !a.manifest.EchoOutput() {
		vm.SetStdout(nil)
	} else {
		vm.SetStdout(out)
	}
	vm.LoadProgram(p)

	entry := opts.entry
	if entry == "" {
		entry = p.Entry
	}

	runID := uuid.New().String()
	a.log.Infof("run %s: %s", runID, entry)

	result, err := vm.RunContext(ctx, entry)
	if err != nil {
		var ee *bytecode.ExecutionError
		if errors.As(err, &ee) && len(ee.Trace) > 0 {
			fmt.Fprintln(errOut, "call stack:")
			for i := len(ee.Trace) - 1; i >= 0; i-- {
				fmt.Fprintf(errOut, "  %s\n", ee.Trace[i])
			}
		}
		a.log.Errorf("run %s failed: %v", runID, err)
		return err
	}

	if vm.State() == bytecode.StateStopped {
		fmt.Fprintln(errOut, "interrupted")
	}
	if opts.stats {
		printStats(out, vm.Statistics(), result)
	}
	a.log.Infof("run %s: %s after %d instructions", runID, vm.State(), vm.Statistics().InstructionCount)
	return nil
}

func (a *app) newInterpreter(opts *runOptions) *bytecode.Interpreter {
	vm := bytecode.NewInterpreter()
	vm.Trace = opts.trace || a.manifest.VM.Trace
	vm.MaxCallDepth = a.manifest.VM.MaxCallDepth
	if opts.maxCallDepth > 0 {
		vm.MaxCallDepth = opts.maxCallDepth
	}
	return vm
}

func printStats(w io.Writer, s bytecode.Statistics, result bytecode.Value) {
	fmt.Fprintf(w, "--- statistics ---\n")
	fmt.Fprintf(w, "state:            %s\n", s.State)
	fmt.Fprintf(w, "result:           %#v\n", result)
	fmt.Fprintf(w, "instructions:     %d\n", s.InstructionCount)
	fmt.Fprintf(w, "max stack depth:  %d\n", s.MaxStackDepth)
	fmt.Fprintf(w, "stack depth:      %d\n", s.CurrentStackDepth)
	fmt.Fprintf(w, "functions called: %d\n", s.FunctionsCalled)
	fmt.Fprintf(w, "globals:          %d\n", s.GlobalVariableCount)
}
