package main

import (
	"github.com/spf13/cobra"

	"github.com/chazu/noodle/server"
)

// version is reported to language clients.
var version = "0.1.0"

func newLspCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Run the assembler language server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.log.Info("starting language server")
			return server.NewLSP(version).Run()
		},
	}
}
