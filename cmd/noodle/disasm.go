package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDisasmCmd(a *app) *cobra.Command {
	var stored string
	var source bool

	cmd := &cobra.Command{
		Use:   "disasm [files...]",
		Short: "Print a program listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProgram(args, stored)
			if err != nil {
				return err
			}
			if source {
				fmt.Fprint(cmd.OutOrStdout(), p.Format())
			} else {
				fmt.Fprint(cmd.OutOrStdout(), p.Disassemble())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&stored, "program", "p", "", "disassemble a program from the store")
	cmd.Flags().BoolVar(&source, "source", false, "print re-assemblable source instead of a listing")
	return cmd
}
