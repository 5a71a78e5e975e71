// Command memsearchd is a thin cobra CLI around the memsearch retrieval
// core: store/recall/get/delete subcommands for manually exercising the
// core, plus serve (keep a collection open) and config/logs utilities.
package main

import (
	"fmt"
	"os"

	"github.com/memsearch/memsearch/cmd/memsearchd/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
