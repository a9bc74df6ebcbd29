package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/noodle/pkg/bytecode"
)

func newAsmCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "asm [files...]",
		Short: "Assemble sources into a program image",
		Example: `  noodle asm hello.nasm            # writes hello.nbc
  noodle asm -o app.nbc lib.nasm main.nasm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProgram(args, "")
			if err != nil {
				return err
			}

			out := output
			if out == "" {
				if len(args) > 0 {
					out = imagePath(args[0])
				} else {
					out = imagePath(a.manifest.Program.Sources[0])
				}
			}
			n, err := writeImage(out, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d functions, %d instructions, %d bytes\n",
				out, len(p.Functions), p.InstructionCount(), n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "image path (default: first source with .nbc extension)")
	return cmd
}

func writeImage(path string, p *bytecode.Program) (int, error) {
	data, err := bytecode.MarshalImage(p)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, err
	}
	return len(data), nil
}
