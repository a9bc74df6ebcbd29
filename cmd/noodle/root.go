package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/noodle/manifest"
	"github.com/chazu/noodle/store"
)

// app is the state shared by all subcommands.
type app struct {
	dir       string
	verbosity int
	logFile   string
	storePath string

	manifest *manifest.Manifest
	log      commonlog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "noodle",
		Short: "Assemble, store, run and debug Noodle bytecode",
		Long: `noodle runs programs for the Noodle stack machine.

Programs are written in assembler (.nasm) or shipped as binary images
(.nbc). With no file arguments, commands use the sources listed in the
nearest noodle.toml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.dir, "dir", "C", ".", "project directory")
	flags.CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	flags.StringVar(&a.logFile, "log-file", "", "write logs to a file instead of stderr")
	flags.StringVar(&a.storePath, "store", "", "program store database (default from noodle.toml)")

	root.AddCommand(
		newRunCmd(a),
		newAsmCmd(a),
		newDisasmCmd(a),
		newStoreCmd(a),
		newDebugCmd(a),
		newLspCmd(a),
	)

	return root
}

// setup loads the manifest and configures logging. Flags override the
// manifest.
func (a *app) setup() error {
	m, err := manifest.FindAndLoad(a.dir)
	if err != nil {
		return err
	}
	if m == nil {
		if m, err = manifest.Default(a.dir); err != nil {
			return err
		}
	}
	a.manifest = m

	verbosity := m.Log.Verbosity
	if a.verbosity > 0 {
		verbosity = a.verbosity
	}
	var path *string
	if a.logFile != "" {
		path = &a.logFile
	} else if f := m.LogFile(); f != "" {
		path = &f
	}
	commonlog.Configure(verbosity, path)

	a.log = commonlog.GetLogger("noodle.cli")
	a.log.Debugf("project %s in %s", m.Project.Name, m.Dir)
	return nil
}

// openStore opens the program store named by --store or the manifest.
func (a *app) openStore() (*store.Store, error) {
	path := a.storePath
	if path == "" {
		path = a.manifest.StorePath()
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening program store %s: %w", path, err)
	}
	return s, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "noodle:", err)
	return 1
}
