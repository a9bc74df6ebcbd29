// Noodle CLI - assembles, stores, runs and debugs Noodle bytecode programs
package main

import (
	"os"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	os.Exit(exitCode(newRootCmd().Execute()))
}
